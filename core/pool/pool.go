package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/searchktools/fast-client/config"
	"github.com/searchktools/fast-client/core/emitter"
	"github.com/searchktools/fast-client/core/runtime"
)

// EventIdle fires with the origin key every time Recycle takes a
// connection back, kept or dropped, so queued work for that origin can be
// revisited. Delete and the timeout sweep do not fire it.
const EventIdle = "idle"

// Pool owns client connections keyed by origin. A connection is in exactly
// one of the idle or in-use sets until it is destroyed. A background sweep
// enforces the connect, read and keepalive timeouts while at least one
// connection is tracked.
type Pool struct {
	*emitter.Emitter

	opts config.Pool
	rt   *runtime.Runtime
	log  zerolog.Logger

	mu       sync.Mutex
	idle     map[string]map[int64]*Connection
	using    map[string]map[int64]*Connection
	sweeping bool

	stats counters
}

// New creates a pool. Zero option fields fall back to the stock defaults.
func New(opts config.Pool, rt *runtime.Runtime, log zerolog.Logger) *Pool {
	def := config.Default().Pool
	if opts.MaxConnPerAddr <= 0 {
		opts.MaxConnPerAddr = def.MaxConnPerAddr
	}
	if opts.KeepaliveTimeout <= 0 {
		opts.KeepaliveTimeout = def.KeepaliveTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if rt == nil {
		rt = runtime.Default()
	}
	if opts.Context != nil {
		shadowed := *rt
		shadowed.TLSConfig = opts.Context
		rt = &shadowed
	}

	return &Pool{
		Emitter: emitter.New(),
		opts:    opts,
		rt:      rt,
		log:     log,
		idle:    make(map[string]map[int64]*Connection),
		using:   make(map[string]map[int64]*Connection),
	}
}

// Options returns the pool configuration in effect.
func (p *Pool) Options() config.Pool {
	return p.opts
}

// Fetch returns a usable connection for origin, or nil when the per-origin
// cap blocks admission. A freshly created connection may still be
// connecting; the caller wires its callbacks before use.
func (p *Pool) Fetch(origin string, useTLS bool) *Connection {
	p.mu.Lock()

	if m := p.idle[origin]; len(m) > 0 {
		var c *Connection
		for _, cand := range m {
			c = cand
			break
		}
		delete(m, c.id)
		if len(m) == 0 {
			delete(p.idle, origin)
		}
		p.bucket(p.using, origin)[c.id] = c
		c.touchRequest()
		p.stats.reused.Add(1)
		p.ensureSweepLocked()
		p.mu.Unlock()

		p.log.Debug().Str("origin", origin).Int64("conn", c.id).Msg("connection reused")
		return c
	}

	if len(p.using[origin]) >= p.opts.MaxConnPerAddr {
		p.mu.Unlock()
		return nil
	}

	c := newConnection(origin, useTLS, p.rt)
	p.bucket(p.using, origin)[c.id] = c
	p.stats.created.Add(1)
	p.ensureSweepLocked()
	p.mu.Unlock()

	p.log.Debug().Str("origin", origin).Int64("conn", c.id).Msg("connection created")
	return c
}

// Recycle takes a connection back from a finished request. Established
// connections go to the idle set with their callbacks cleared; anything
// else is dropped. The idle event fires either way.
func (p *Pool) Recycle(c *Connection) {
	origin := c.origin

	p.mu.Lock()
	p.removeLocked(p.using, origin, c.id)

	dropped := c.State() != StateEstablished
	c.ClearCallbacks()
	if !dropped {
		c.touchIdle()
		p.bucket(p.idle, origin)[c.id] = c
		p.ensureSweepLocked()
	} else {
		p.stats.destroyed.Add(1)
	}
	p.mu.Unlock()

	if dropped {
		c.Close()
		p.log.Debug().Str("origin", origin).Int64("conn", c.id).Msg("connection dropped")
	} else {
		p.log.Debug().Str("origin", origin).Int64("conn", c.id).Msg("connection recycled")
	}

	p.Emit(EventIdle, origin)
}

// Reconnect re-dials a dead connection in place, but only while the pool
// still tracks it as in-use; a connection the pool has already dropped
// stays dropped. Reports whether the redial was started.
func (p *Pool) Reconnect(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.using[c.origin]
	if m == nil || m[c.id] != c {
		return false
	}
	c.reconnect()
	return true
}

// Delete removes a connection from both sets without closing its socket.
func (p *Pool) Delete(c *Connection) {
	p.mu.Lock()
	p.removeLocked(p.using, c.origin, c.id)
	p.removeLocked(p.idle, c.origin, c.id)
	p.mu.Unlock()
}

// Close destroys every tracked connection.
func (p *Pool) Close() {
	p.mu.Lock()
	var all []*Connection
	for _, m := range p.idle {
		for _, c := range m {
			all = append(all, c)
		}
	}
	for _, m := range p.using {
		for _, c := range m {
			all = append(all, c)
		}
	}
	p.idle = make(map[string]map[int64]*Connection)
	p.using = make(map[string]map[int64]*Connection)
	p.sweeping = false
	p.mu.Unlock()

	for _, c := range all {
		c.ClearCallbacks()
		c.Close()
	}
}

// InUse returns the size of the in-use set for origin.
func (p *Pool) InUse(origin string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.using[origin])
}

// Idle returns the size of the idle set for origin.
func (p *Pool) Idle(origin string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[origin])
}

func (p *Pool) bucket(set map[string]map[int64]*Connection, origin string) map[int64]*Connection {
	m := set[origin]
	if m == nil {
		m = make(map[int64]*Connection)
		set[origin] = m
	}
	return m
}

func (p *Pool) removeLocked(set map[string]map[int64]*Connection, origin string, id int64) {
	if m := set[origin]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(set, origin)
		}
	}
}

// ensureSweepLocked starts the sweep goroutine if it is not running.
// Callers hold p.mu.
func (p *Pool) ensureSweepLocked() {
	if p.sweeping {
		return
	}
	p.sweeping = true
	go p.sweepLoop()
}

func (p *Pool) sweepLoop() {
	ticker := p.rt.Ticker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if p.sweepOnce() {
			return
		}
	}
}

type expiry struct {
	c    *Connection
	code int
	msg  string
}

// sweepOnce expires idle connections past the keepalive window and in-use
// connections past their connect or read deadline. It reports whether the
// sweep should halt because nothing is tracked anymore.
func (p *Pool) sweepOnce() bool {
	now := time.Now()
	var dead []*Connection
	var timedOut []expiry

	p.mu.Lock()
	for origin, m := range p.idle {
		for id, c := range m {
			if now.Sub(c.idledAt()) >= p.opts.KeepaliveDuration() {
				delete(m, id)
				dead = append(dead, c)
			}
		}
		if len(m) == 0 {
			delete(p.idle, origin)
		}
	}

	for origin, m := range p.using {
		for id, c := range m {
			switch c.State() {
			case StateConnecting:
				if now.Sub(c.connectedAt()) >= p.opts.ConnectDuration() {
					delete(m, id)
					timedOut = append(timedOut, expiry{
						c:    c,
						code: CodeConnectFail,
						msg:  fmt.Sprintf("connect %s timeout after %ds", origin, p.opts.ConnectTimeout),
					})
				}
			case StateEstablished:
				if now.Sub(c.requestedAt()) >= p.opts.TimeoutDuration() {
					delete(m, id)
					timedOut = append(timedOut, expiry{
						c:    c,
						code: CodeReadTimeout,
						msg:  fmt.Sprintf("read %s timeout after %ds", origin, p.opts.Timeout),
					})
				}
			}
		}
		if len(m) == 0 {
			delete(p.using, origin)
		}
	}

	stopped := len(p.idle) == 0 && len(p.using) == 0
	if stopped {
		p.sweeping = false
	}
	p.mu.Unlock()

	for _, c := range dead {
		p.stats.destroyed.Add(1)
		p.log.Debug().Str("origin", c.origin).Int64("conn", c.id).Msg("idle connection expired")
		c.Close()
	}

	for _, e := range timedOut {
		if e.code == CodeConnectFail {
			p.stats.connectTimeouts.Add(1)
		} else {
			p.stats.readTimeouts.Add(1)
		}
		p.stats.destroyed.Add(1)
		p.log.Debug().Str("origin", e.c.origin).Int64("conn", e.c.id).Str("reason", e.msg).Msg("connection timed out")

		// The slot is already untracked; close must happen even if the
		// error callback panics.
		e.c.SetOnClose(nil)
		func() {
			defer e.c.Close()
			if cb := e.c.errorCb(); cb != nil {
				cb(e.c, e.code, e.msg)
			}
		}()
	}

	return stopped
}
