package pool

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/searchktools/fast-client/config"
	"github.com/searchktools/fast-client/core/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRuntime never completes a dial, keeping connections in the
// connecting state.
func blockingRuntime() *runtime.Runtime {
	return &runtime.Runtime{
		Dial: func(network, addr string) (net.Conn, error) {
			time.Sleep(time.Hour)
			return nil, net.ErrClosed
		},
	}
}

// echoServer accepts connections and answers every request line block with
// a fixed keep-alive response.
func echoServer(t *testing.T) (addr string, closeFn func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if strings.TrimSpace(line) != "" {
						continue
					}
					if _, err := conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: keep-alive\r\n\r\nok")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func waitForState(t *testing.T, c *Connection, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection never reached state %v (now %v)", want, c.State())
}

func TestFetchAdmission(t *testing.T) {
	opts := config.Pool{MaxConnPerAddr: 2}
	p := New(opts, blockingRuntime(), zerolog.Nop())

	c1 := p.Fetch("tcp://h:80", false)
	c2 := p.Fetch("tcp://h:80", false)
	require.NotNil(t, c1)
	require.NotNil(t, c2)
	assert.Equal(t, 2, p.InUse("tcp://h:80"))

	// Cap reached: admission denied.
	assert.Nil(t, p.Fetch("tcp://h:80", false))

	// A different origin is unaffected.
	assert.NotNil(t, p.Fetch("tcp://other:80", false))
}

func TestRecycleDropsNonEstablished(t *testing.T) {
	p := New(config.Pool{}, blockingRuntime(), zerolog.Nop())

	idleFired := make(chan string, 1)
	p.On(EventIdle, func(args ...any) {
		idleFired <- args[0].(string)
	})

	c := p.Fetch("tcp://h:80", false)
	require.NotNil(t, c)
	require.Equal(t, StateConnecting, c.State())

	p.Recycle(c)

	assert.Equal(t, 0, p.InUse("tcp://h:80"))
	assert.Equal(t, 0, p.Idle("tcp://h:80"))

	select {
	case origin := <-idleFired:
		assert.Equal(t, "tcp://h:80", origin)
	case <-time.After(time.Second):
		t.Fatal("idle event did not fire for a dropped connection")
	}
}

func TestRecycleAndReuseEstablished(t *testing.T) {
	addr, closeFn := echoServer(t)
	defer closeFn()
	origin := "tcp://" + addr

	p := New(config.Pool{}, runtime.Default(), zerolog.Nop())

	c := p.Fetch(origin, false)
	require.NotNil(t, c)
	waitForState(t, c, StateEstablished)

	p.Recycle(c)
	assert.Equal(t, 0, p.InUse(origin))
	assert.Equal(t, 1, p.Idle(origin))

	again := p.Fetch(origin, false)
	require.NotNil(t, again)
	assert.Equal(t, c.ID(), again.ID())
	assert.Equal(t, 0, p.Idle(origin))

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Reused)

	p.Close()
}

func TestRecycleClearsCallbacks(t *testing.T) {
	addr, closeFn := echoServer(t)
	defer closeFn()
	origin := "tcp://" + addr

	p := New(config.Pool{}, runtime.Default(), zerolog.Nop())

	c := p.Fetch(origin, false)
	require.NotNil(t, c)
	waitForState(t, c, StateEstablished)

	fired := false
	c.SetOnMessage(func(*Connection, []byte) { fired = true })
	c.SetOnClose(func(*Connection) { fired = true })

	p.Recycle(c)

	assert.Nil(t, c.messageCb())
	assert.False(t, fired)

	p.Close()
}

func TestConnectTimeoutSweep(t *testing.T) {
	opts := config.Pool{ConnectTimeout: 1}
	p := New(opts, blockingRuntime(), zerolog.Nop())

	c := p.Fetch("tcp://blackhole:81", false)
	require.NotNil(t, c)

	type callbackErr struct {
		code int
		msg  string
	}
	errCh := make(chan callbackErr, 1)
	c.SetOnError(func(_ *Connection, code int, msg string) {
		errCh <- callbackErr{code, msg}
	})

	select {
	case got := <-errCh:
		assert.Equal(t, CodeConnectFail, got.code)
		assert.Contains(t, got.msg, "connect")
		assert.Contains(t, got.msg, "timeout")
	case <-time.After(4 * time.Second):
		t.Fatal("connect timeout never fired")
	}

	// The slot is gone from the in-use set.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && p.InUse("tcp://blackhole:81") != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, p.InUse("tcp://blackhole:81"))
	assert.Equal(t, uint64(1), p.Stats().ConnectTimeouts)
}

func TestReadTimeoutSweep(t *testing.T) {
	// A server that accepts but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn
		}
	}()

	origin := "tcp://" + ln.Addr().String()
	p := New(config.Pool{Timeout: 1}, runtime.Default(), zerolog.Nop())

	c := p.Fetch(origin, false)
	require.NotNil(t, c)
	waitForState(t, c, StateEstablished)

	errCh := make(chan int, 1)
	c.SetOnError(func(_ *Connection, code int, msg string) {
		assert.Contains(t, msg, "read")
		assert.Contains(t, msg, "timeout")
		errCh <- code
	})

	select {
	case code := <-errCh:
		assert.Equal(t, CodeReadTimeout, code)
	case <-time.After(4 * time.Second):
		t.Fatal("read timeout never fired")
	}
}

func TestKeepaliveSweep(t *testing.T) {
	addr, closeFn := echoServer(t)
	defer closeFn()
	origin := "tcp://" + addr

	p := New(config.Pool{KeepaliveTimeout: 1}, runtime.Default(), zerolog.Nop())

	c := p.Fetch(origin, false)
	require.NotNil(t, c)
	waitForState(t, c, StateEstablished)
	p.Recycle(c)
	require.Equal(t, 1, p.Idle(origin))

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) && p.Idle(origin) != 0 {
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, 0, p.Idle(origin))
	waitForState(t, c, StateClosed)
}

func TestReconnectOnlyWhileTracked(t *testing.T) {
	p := New(config.Pool{}, blockingRuntime(), zerolog.Nop())

	c := p.Fetch("tcp://h:80", false)
	require.NotNil(t, c)
	assert.True(t, p.Reconnect(c), "an in-use connection may be redialed")

	// Once the pool drops the connection a redial must be refused.
	p.Recycle(c)
	assert.False(t, p.Reconnect(c))
}

func TestDeleteLeavesSocketOpen(t *testing.T) {
	p := New(config.Pool{}, blockingRuntime(), zerolog.Nop())

	c := p.Fetch("tcp://h:80", false)
	require.NotNil(t, c)

	p.Delete(c)

	assert.Equal(t, 0, p.InUse("tcp://h:80"))
	assert.Equal(t, StateConnecting, c.State())
}
