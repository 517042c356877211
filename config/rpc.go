package config

import "time"

// RPCConfig contains RPC API server configuration.
type RPCConfig struct {
	// Addr is the address to bind the RPC server to.
	Addr string `env:"RPC_ADDR" envDefault:":8080"`

	// ReadTimeout bounds reading a request including the body.
	ReadTimeout time.Duration `env:"RPC_READ_TIMEOUT" envDefault:"30s"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `env:"RPC_WRITE_TIMEOUT" envDefault:"60s"`

	// MaxBodyBytes caps the accepted request body size.
	MaxBodyBytes int64 `env:"RPC_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Sanitize applies guardrails to RPC configuration values.
func (r *RPCConfig) Sanitize() {
	if r.ReadTimeout <= 0 {
		r.ReadTimeout = 30 * time.Second
	}
	if r.WriteTimeout <= 0 {
		r.WriteTimeout = 60 * time.Second
	}
	if r.MaxBodyBytes < 1024 {
		r.MaxBodyBytes = 1024
	}
}
