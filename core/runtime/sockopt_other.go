//go:build !linux

package runtime

import (
	"net"
	"time"
)

// tuneConn disables Nagle and enables TCP keepalive via the portable API.
func tuneConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}

	tc.SetNoDelay(true)
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(30 * time.Second)
}
