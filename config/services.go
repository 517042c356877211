package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeRPC runs the RPC API server.
	ServiceModeRPC ServiceMode = "rpc"
	// ServiceModeAgent runs the test agent that executes queued tests.
	ServiceModeAgent ServiceMode = "agent"
	// ServiceModeJanitor runs the janitor that fails abandoned running tests.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeRPC, ServiceModeAgent, ServiceModeJanitor}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeRPC, ServiceModeAgent, ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: rpc, agent, janitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// AgentConfig contains test agent service configuration.
type AgentConfig struct {
	// Concurrency is the number of tests executed in parallel.
	Concurrency int `env:"AGENT_CONCURRENCY" envDefault:"4"`

	// PollInterval is the fallback poll interval used when the store's
	// notification channel is quiet.
	PollInterval time.Duration `env:"AGENT_POLL_INTERVAL" envDefault:"10s"`

	// TestTimeout bounds the execution of a single test.
	TestTimeout time.Duration `env:"AGENT_TEST_TIMEOUT" envDefault:"10m"`
}

// Sanitize applies guardrails to agent configuration values.
func (a *AgentConfig) Sanitize() {
	if a.Concurrency < 1 {
		a.Concurrency = 1
	}
	if a.PollInterval < time.Second {
		a.PollInterval = time.Second
	}
	if a.TestTimeout < 10*time.Second {
		a.TestTimeout = 10 * time.Second
	}
}

// JanitorConfig contains janitor service configuration.
type JanitorConfig struct {
	// Interval is the janitor tick interval.
	Interval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	// RunningMaxAge is the maximum age of a running test before the janitor
	// fails it on behalf of a disappeared runner.
	RunningMaxAge time.Duration `env:"JANITOR_RUNNING_MAX_AGE" envDefault:"1h"`
}

// Sanitize applies guardrails to janitor configuration values.
func (j *JanitorConfig) Sanitize() {
	if j.Interval < time.Minute {
		j.Interval = time.Minute
	}
	if j.RunningMaxAge < 5*time.Minute {
		j.RunningMaxAge = 5 * time.Minute
	}
}
