// Package config holds the application configuration, loaded from
// environment variables via github.com/caarlos0/env.
//
// Configuration is split by concern:
//   - database.go: PostgreSQL and Redis configuration
//   - backend.go: test identity, reuse, and profile configuration
//   - services.go: service mode, agent, and janitor configuration
//   - rpc.go: RPC server configuration
//   - observability.go: metrics configuration
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
type AppConfig struct {
	// IsDev controls development mode behavior.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Backend configuration (identity, reuse window, profiles)
	Backend BackendConfig

	// RPC server configuration
	RPC RPCConfig

	// Service mode configuration.
	// Valid values: rpc, agent, janitor (comma-delimited).
	Services string `env:"SERVICES" envDefault:"rpc"`

	// Test agent configuration
	Agent AgentConfig

	// Janitor configuration
	Janitor JanitorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Backend.Sanitize()
	c.RPC.Sanitize()
	c.Agent.Sanitize()
	c.Janitor.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsRPCEnabled returns true if the RPC server service is enabled.
func (c *AppConfig) IsRPCEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRPC]
}

// IsAgentEnabled returns true if the test agent service is enabled.
func (c *AppConfig) IsAgentEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeAgent]
}

// IsJanitorEnabled returns true if the janitor service is enabled.
func (c *AppConfig) IsJanitorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeJanitor]
}
