package config

import (
	"crypto/tls"
	"time"

	"github.com/mstoykov/envconfig"
)

// Pool holds connection pool configuration. Timeouts are whole seconds;
// the json names below are the stable wire names.
type Pool struct {
	// MaxConnPerAddr caps concurrent in-use connections per origin.
	MaxConnPerAddr int `json:"max_conn_per_addr" envconfig:"FASTCLIENT_MAX_CONN_PER_ADDR"`
	// KeepaliveTimeout is how long an idle connection stays pooled.
	KeepaliveTimeout int `json:"keepalive_timeout" envconfig:"FASTCLIENT_KEEPALIVE_TIMEOUT"`
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout int `json:"connect_timeout" envconfig:"FASTCLIENT_CONNECT_TIMEOUT"`
	// Timeout bounds a whole request/response exchange on an established
	// connection.
	Timeout int `json:"timeout" envconfig:"FASTCLIENT_TIMEOUT"`
	// Context carries TLS/transport options for new connections. Nil
	// selects the runtime default.
	Context *tls.Config `json:"-"`
}

// Config is the top-level client configuration.
type Config struct {
	Pool Pool `json:"pool"`

	// UserAgent is sent when a request does not set its own.
	UserAgent string `json:"user_agent" envconfig:"FASTCLIENT_USER_AGENT"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Pool: Pool{
			MaxConnPerAddr:   128,
			KeepaliveTimeout: 15,
			ConnectTimeout:   30,
			Timeout:          30,
		},
		UserAgent: "fast-client/1.0",
	}
}

// FromEnv returns the stock configuration with FASTCLIENT_* environment
// overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KeepaliveDuration returns KeepaliveTimeout as a time.Duration.
func (p Pool) KeepaliveDuration() time.Duration {
	return time.Duration(p.KeepaliveTimeout) * time.Second
}

// ConnectDuration returns ConnectTimeout as a time.Duration.
func (p Pool) ConnectDuration() time.Duration {
	return time.Duration(p.ConnectTimeout) * time.Second
}

// TimeoutDuration returns Timeout as a time.Duration.
func (p Pool) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}
