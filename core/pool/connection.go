package pool

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/fast-client/core/runtime"
)

// Connection states
type State int32

const (
	StateConnecting State = iota
	StateEstablished
	StateClosing
	StateClosed
)

// String returns the string representation of the connection state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Legacy numeric codes reported through the error callback.
const (
	CodeConnectFail = 1
	CodeReadTimeout = 128
)

var ErrNotEstablished = errors.New("connection not established")

var connID atomic.Int64

// Callback slots a connection owner may fill. Slices handed to OnMessage
// are only valid for the duration of the call.
type (
	ConnectFunc func(*Connection)
	MessageFunc func(*Connection, []byte)
	CloseFunc   func(*Connection)
	ErrorFunc   func(c *Connection, code int, msg string)
)

// Connection owns one TCP (optionally TLS-wrapped) socket to an origin.
// Establishment and reads happen on a dedicated goroutine; the owner hears
// back through the callback slots.
type Connection struct {
	id     int64
	origin string // canonical "tcp://host:port"
	addr   string // "host:port" dial target
	host   string // for TLS server name
	useTLS bool
	rt     *runtime.Runtime

	state atomic.Int32
	// gen invalidates the dial/read goroutine of a previous incarnation
	// after Reconnect.
	gen atomic.Uint32

	// Lifecycle timestamps (unix nanos): creation, pool handoff, return
	// to the idle set.
	connectTime atomic.Int64
	requestTime atomic.Int64
	idleTime    atomic.Int64

	mu         sync.Mutex
	conn       net.Conn
	closeFired bool

	onConnect ConnectFunc
	onMessage MessageFunc
	onClose   CloseFunc
	onError   ErrorFunc

	writeMu sync.Mutex
}

// Dial opens a connection to origin outside the pool's tracking, for a
// caller that owns the whole lifecycle itself. It is never recycled, never
// swept, and must be closed by its owner.
func Dial(origin string, useTLS bool, rt *runtime.Runtime) *Connection {
	if rt == nil {
		rt = runtime.Default()
	}
	return newConnection(origin, useTLS, rt)
}

// newConnection starts dialing origin in the background and returns the
// connection in StateConnecting.
func newConnection(origin string, useTLS bool, rt *runtime.Runtime) *Connection {
	c := &Connection{
		id:     connID.Add(1),
		origin: origin,
		addr:   strings.TrimPrefix(origin, "tcp://"),
		useTLS: useTLS,
		rt:     rt,
	}
	c.host, _, _ = net.SplitHostPort(c.addr)
	c.state.Store(int32(StateConnecting))
	c.touchConnect()
	c.touchRequest()

	go c.dial(c.gen.Load())
	return c
}

// ID returns the process-unique connection identifier.
func (c *Connection) ID() int64 { return c.id }

// Origin returns the canonical origin key.
func (c *Connection) Origin() string { return c.origin }

// State returns the current connection state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) touchConnect() { c.connectTime.Store(time.Now().UnixNano()) }
func (c *Connection) touchRequest() { c.requestTime.Store(time.Now().UnixNano()) }
func (c *Connection) touchIdle()    { c.idleTime.Store(time.Now().UnixNano()) }

func (c *Connection) connectedAt() time.Time { return time.Unix(0, c.connectTime.Load()) }
func (c *Connection) requestedAt() time.Time { return time.Unix(0, c.requestTime.Load()) }
func (c *Connection) idledAt() time.Time     { return time.Unix(0, c.idleTime.Load()) }

// SetOnConnect fills the connect callback slot.
func (c *Connection) SetOnConnect(fn ConnectFunc) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnMessage fills the inbound-data callback slot.
func (c *Connection) SetOnMessage(fn MessageFunc) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// SetOnClose fills the close callback slot.
func (c *Connection) SetOnClose(fn CloseFunc) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// SetOnError fills the error callback slot.
func (c *Connection) SetOnError(fn ErrorFunc) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// ClearCallbacks empties every callback slot.
func (c *Connection) ClearCallbacks() {
	c.mu.Lock()
	c.onConnect = nil
	c.onMessage = nil
	c.onClose = nil
	c.onError = nil
	c.mu.Unlock()
}

func (c *Connection) connectCb() ConnectFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onConnect
}

func (c *Connection) messageCb() MessageFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMessage
}

func (c *Connection) errorCb() ErrorFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onError
}

// dial establishes the socket, then keeps reading from it until it closes.
func (c *Connection) dial(gen uint32) {
	raw, err := c.rt.Dial("tcp", c.addr)
	if err != nil {
		c.failConnect(gen, err)
		return
	}

	if c.stale(gen) {
		raw.Close()
		return
	}

	if c.useTLS {
		tlsConn, err := c.rt.TLSClient(raw, c.host)
		if err != nil {
			raw.Close()
			c.failConnect(gen, err)
			return
		}
		raw = tlsConn
	}

	c.mu.Lock()
	if c.gen.Load() != gen || c.State() != StateConnecting {
		c.mu.Unlock()
		raw.Close()
		return
	}
	c.conn = raw
	c.state.Store(int32(StateEstablished))
	c.mu.Unlock()

	if cb := c.connectCb(); cb != nil {
		cb(c)
	}

	c.readLoop(gen, raw)
}

func (c *Connection) stale(gen uint32) bool {
	return c.gen.Load() != gen || c.State() != StateConnecting
}

func (c *Connection) failConnect(gen uint32, err error) {
	if c.stale(gen) {
		return
	}
	c.state.Store(int32(StateClosed))
	if cb := c.errorCb(); cb != nil {
		cb(c, CodeConnectFail, fmt.Sprintf("connect %s failed: %v", c.origin, err))
	}
	c.fireClose()
}

// readLoop delivers inbound bytes to the message callback until the socket
// reports an error or EOF, which both count as a peer close.
func (c *Connection) readLoop(gen uint32, raw net.Conn) {
	buf := getBuffer(readBufferSize)
	defer putBuffer(buf)

	for {
		n, err := raw.Read(buf)
		if n > 0 {
			if cb := c.messageCb(); cb != nil {
				cb(c, buf[:n])
			}
		}
		if err != nil {
			if c.gen.Load() != gen {
				return
			}
			c.fireClose()
			return
		}
	}
}

// Send writes p to the socket. The connection must be established.
func (c *Connection) Send(p []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateEstablished {
		return ErrNotEstablished
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := conn.Write(p)
	return err
}

// Close shuts the socket down. The close callback fires once the read loop
// observes the closed socket (immediately when no socket exists yet).
func (c *Connection) Close() error {
	c.mu.Lock()
	st := c.State()
	if st == StateClosing || st == StateClosed {
		c.mu.Unlock()
		return nil
	}

	conn := c.conn
	if conn != nil {
		c.state.Store(int32(StateClosing))
		c.mu.Unlock()
		return conn.Close()
	}

	// Still dialing: mark closed so the dial goroutine discards its result.
	c.state.Store(int32(StateClosed))
	c.mu.Unlock()
	c.fireClose()
	return nil
}

// reconnect re-dials the origin in place. Any previous socket and its read
// loop are abandoned. Only the pool may call this, under its own lock, so
// a connection it has already dropped can never be redialed.
func (c *Connection) reconnect() {
	gen := c.gen.Add(1)

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.closeFired = false
	c.mu.Unlock()

	c.state.Store(int32(StateConnecting))
	c.touchConnect()

	go c.dial(gen)
}

// fireClose transitions to StateClosed and invokes the close callback at
// most once per incarnation.
func (c *Connection) fireClose() {
	c.mu.Lock()
	if c.closeFired {
		c.mu.Unlock()
		return
	}
	c.closeFired = true
	cb := c.onClose
	c.mu.Unlock()

	c.state.Store(int32(StateClosed))
	if cb != nil {
		cb(c)
	}
}
