//go:build linux

package runtime

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneConn disables Nagle and enables TCP keepalive probes on the raw
// socket. Failures are ignored; the connection still works untuned.
func tuneConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}

	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)

		// Wait 30s before the first probe, then probe every 10s.
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, 10)
	})
}
