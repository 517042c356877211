package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service",
			input:    "rpc",
			expected: map[ServiceMode]bool{ServiceModeRPC: true},
		},
		{
			name:  "multiple services",
			input: "rpc,agent",
			expected: map[ServiceMode]bool{
				ServiceModeRPC:   true,
				ServiceModeAgent: true,
			},
		},
		{
			name:  "all services with whitespace",
			input: " rpc , agent , janitor ",
			expected: map[ServiceMode]bool{
				ServiceModeRPC:     true,
				ServiceModeAgent:   true,
				ServiceModeJanitor: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "rpc,websocket",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.False(t, cfg.IsDev)
	assert.Equal(t, "rpc", cfg.Services)
	assert.True(t, cfg.IsRPCEnabled())
	assert.False(t, cfg.IsAgentEnabled())
	assert.False(t, cfg.IsJanitorEnabled())

	assert.Equal(t, "default", cfg.Backend.DefaultProfile)
	assert.Equal(t, []string{"default"}, cfg.Backend.Profiles)
	assert.Equal(t, 10*time.Minute, cfg.Backend.ReuseWindow)
	assert.Equal(t, 10000, cfg.Backend.BatchMaxSize)

	assert.Equal(t, ":8080", cfg.RPC.Addr)
	assert.Equal(t, int64(1048576), cfg.RPC.MaxBodyBytes)

	assert.Equal(t, 4, cfg.Agent.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Janitor.Interval)
}

func TestBackendSanitize(t *testing.T) {
	t.Run("default profile always accepted", func(t *testing.T) {
		b := BackendConfig{
			DefaultProfile: "strict",
			Profiles:       []string{"default"},
		}
		b.Sanitize()
		assert.True(t, b.HasProfile("strict"))
		assert.True(t, b.HasProfile("default"))
	})

	t.Run("profiles deduplicated and trimmed", func(t *testing.T) {
		b := BackendConfig{
			DefaultProfile: "default",
			Profiles:       []string{" default ", "default", "", "strict"},
		}
		b.Sanitize()
		assert.Equal(t, []string{"default", "strict"}, b.Profiles)
	})

	t.Run("limits clamped", func(t *testing.T) {
		b := BackendConfig{
			ReuseWindow:         -time.Minute,
			BatchMaxSize:        0,
			HistoryDefaultLimit: 0,
			HistoryMaxLimit:     0,
		}
		b.Sanitize()
		assert.Equal(t, time.Duration(0), b.ReuseWindow)
		assert.Equal(t, 1, b.BatchMaxSize)
		assert.Equal(t, 1, b.HistoryDefaultLimit)
		assert.GreaterOrEqual(t, b.HistoryMaxLimit, b.HistoryDefaultLimit)
	})
}

func TestRPCSanitize(t *testing.T) {
	r := RPCConfig{}
	r.Sanitize()
	assert.Equal(t, 30*time.Second, r.ReadTimeout)
	assert.Equal(t, 60*time.Second, r.WriteTimeout)
	assert.Equal(t, int64(1024), r.MaxBodyBytes)
}

func TestAgentSanitize(t *testing.T) {
	a := AgentConfig{Concurrency: -1, PollInterval: time.Millisecond, TestTimeout: time.Second}
	a.Sanitize()
	assert.Equal(t, 1, a.Concurrency)
	assert.Equal(t, time.Second, a.PollInterval)
	assert.Equal(t, 10*time.Second, a.TestTimeout)
}

func TestJanitorSanitize(t *testing.T) {
	j := JanitorConfig{Interval: time.Second, RunningMaxAge: time.Minute}
	j.Sanitize()
	assert.Equal(t, time.Minute, j.Interval)
	assert.Equal(t, 5*time.Minute, j.RunningMaxAge)
}
