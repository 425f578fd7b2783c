package runtime

import (
	"crypto/tls"
	"net"
	"time"
)

// Runtime bundles the host capabilities the client core depends on: a TCP
// dialer, a TLS client configuration and timer scheduling. A zero value is
// not usable; construct with Default and override fields as needed.
type Runtime struct {
	// Dial establishes plain TCP connections.
	Dial func(network, addr string) (net.Conn, error)

	// TLSConfig is cloned for TLS-wrapped connections. Defaults to an
	// insecure configuration with peer verification disabled; callers
	// talking to real services must supply their own.
	TLSConfig *tls.Config
}

// Default returns a runtime backed by the net package, with socket tuning
// applied to every dialed connection.
func Default() *Runtime {
	return &Runtime{
		Dial: func(network, addr string) (net.Conn, error) {
			conn, err := net.Dial(network, addr)
			if err != nil {
				return nil, err
			}
			tuneConn(conn)
			return conn, nil
		},
		TLSConfig: InsecureTLSConfig(),
	}
}

// InsecureTLSConfig returns the default TLS context: certificate and host
// name verification disabled.
func InsecureTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
	}
}

// TLSClient wraps conn in a client-side TLS session for serverName and runs
// the handshake.
func (r *Runtime) TLSClient(conn net.Conn, serverName string) (net.Conn, error) {
	cfg := r.TLSConfig
	if cfg == nil {
		cfg = InsecureTLSConfig()
	}
	cfg = cfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	tc := tls.Client(conn, cfg)
	if err := tc.Handshake(); err != nil {
		return nil, err
	}
	return tc, nil
}

// AfterFunc schedules fn on its own goroutine after d. A zero d yields the
// earliest possible tick.
func (r *Runtime) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, fn)
}

// Ticker returns a periodic ticker with interval d.
func (r *Runtime) Ticker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}
