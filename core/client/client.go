package client

import (
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/searchktools/fast-client/config"
	"github.com/searchktools/fast-client/core/pool"
	"github.com/searchktools/fast-client/core/protocol"
	"github.com/searchktools/fast-client/core/runtime"
)

// Client accepts user requests, queues them per origin and pairs them with
// pooled connections. Calls without a success callback suspend until the
// exchange completes, so both callback and synchronous styles work against
// the same dispatcher.
type Client struct {
	cfg  *config.Config
	rt   *runtime.Runtime
	log  zerolog.Logger
	pool *pool.Pool

	mu     sync.Mutex
	queues map[string][]*task
}

// task is one queued request.
type task struct {
	u      *url.URL
	origin string
	tls    bool
	opts   *Options
}

// New creates a client with the default runtime and no logging.
func New(cfg *config.Config) *Client {
	return NewWith(cfg, runtime.Default(), zerolog.Nop())
}

// NewWith creates a client with an explicit runtime and logger.
func NewWith(cfg *config.Config, rt *runtime.Runtime, log zerolog.Logger) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	if rt == nil {
		rt = runtime.Default()
	}

	c := &Client{
		cfg:    cfg,
		rt:     rt,
		log:    log,
		pool:   pool.New(cfg.Pool, rt, log),
		queues: make(map[string][]*task),
	}

	// A connection leaving the in-use set may unblock queued work for
	// its origin.
	c.pool.On(pool.EventIdle, func(args ...any) {
		if origin, ok := args[0].(string); ok {
			c.process(origin)
		}
	})
	return c
}

// Pool exposes the connection pool, mainly for stats.
func (c *Client) Pool() *pool.Pool {
	return c.pool
}

// Close destroys all pooled connections.
func (c *Client) Close() {
	c.pool.Close()
}

// Get issues a GET request. With a nil onSuccess the call suspends and
// returns the response; otherwise it returns immediately and the outcome
// arrives through the callbacks.
func (c *Client) Get(rawURL string, headers map[string]string, onSuccess func(*protocol.Response), onError func(error)) (*protocol.Response, error) {
	return c.Request(rawURL, &Options{
		Method:  "GET",
		Headers: headers,
		Success: onSuccess,
		Error:   onError,
	})
}

// Post issues a POST request with data as the body.
func (c *Client) Post(rawURL string, data any, headers map[string]string, onSuccess func(*protocol.Response), onError func(error)) (*protocol.Response, error) {
	return c.Request(rawURL, &Options{
		Method:  "POST",
		Data:    data,
		Headers: headers,
		Success: onSuccess,
		Error:   onError,
	})
}

// Request queues a request for rawURL. When opts.Success is nil the call
// suspends until the exchange completes and returns the result; otherwise
// it returns (nil, nil) immediately.
//
// A failure detected before the request is queued is delivered through
// opts.Error on a zero-delay timer when one is set, so the caller never
// observes a synchronous re-entry.
func (c *Client) Request(rawURL string, opts *Options) (*protocol.Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	needSuspend := opts.Success == nil

	u, perr := url.Parse(rawURL)
	var origin string
	var useTLS bool
	if perr == nil {
		origin, useTLS, perr = parseOrigin(u)
	}
	if perr != nil {
		if opts.Error != nil {
			cb := opts.Error
			c.rt.AfterFunc(0, func() { cb(ErrInvalidURL) })
			return nil, nil
		}
		return nil, ErrInvalidURL
	}

	var susp *runtime.Suspension
	if needSuspend {
		susp = runtime.NewSuspension()
		opts.Success = func(resp *protocol.Response) { susp.Resume(resp) }
		if opts.Error == nil {
			opts.Error = func(err error) { susp.Throw(err) }
		} else {
			userErr := opts.Error
			opts.Error = func(err error) {
				userErr(err)
				susp.Throw(err)
			}
		}
	}

	t := &task{u: u, origin: origin, tls: useTLS, opts: opts}
	c.mu.Lock()
	c.queues[origin] = append(c.queues[origin], t)
	c.mu.Unlock()

	c.process(origin)

	if needSuspend {
		v, err := susp.Await()
		if err != nil {
			return nil, err
		}
		return v.(*protocol.Response), nil
	}
	return nil, nil
}

// process tries to start the head task queued for origin. When admission
// is blocked it simply returns; the pool's idle event re-drives it. A task
// carrying its own context gets a dedicated connection outside the pool
// and skips admission entirely.
func (c *Client) process(origin string) {
	c.mu.Lock()
	q := c.queues[origin]
	if len(q) == 0 {
		delete(c.queues, origin)
		c.mu.Unlock()
		return
	}
	t := q[0]

	if t.opts.Context != nil {
		c.dequeueLocked(origin, q)
		c.mu.Unlock()
		c.startRequest(t, c.dialSelf(t), true)
		return
	}
	c.mu.Unlock()

	conn := c.pool.Fetch(origin, t.tls)
	if conn == nil {
		return
	}

	// Re-check under the lock: another goroutine may have drained the
	// queue (or left a self-connection task at its head) while we fetched.
	c.mu.Lock()
	q = c.queues[origin]
	if len(q) == 0 {
		delete(c.queues, origin)
		c.mu.Unlock()
		c.pool.Recycle(conn)
		return
	}
	t = q[0]
	if t.opts.Context != nil {
		c.mu.Unlock()
		c.pool.Recycle(conn)
		return
	}
	c.dequeueLocked(origin, q)
	c.mu.Unlock()

	c.startRequest(t, conn, false)
}

// dequeueLocked drops the head of origin's queue. Callers hold c.mu.
func (c *Client) dequeueLocked(origin string, q []*task) {
	if len(q) <= 1 {
		delete(c.queues, origin)
		return
	}
	c.queues[origin] = q[1:]
}

// dialSelf opens a dedicated connection for a task with its own context.
func (c *Client) dialSelf(t *task) *pool.Connection {
	shadowed := *c.rt
	shadowed.TLSConfig = t.opts.Context
	c.log.Debug().Str("origin", t.origin).Msg("dialing dedicated connection for request context")
	return pool.Dial(t.origin, t.tls, &shadowed)
}

// startRequest binds the task to conn, wires completion handlers and sends.
func (c *Client) startRequest(t *task, conn *pool.Connection, self bool) {
	req := c.buildRequest(t)
	req.selfConnection = self

	req.Once(EventSuccess, func(args ...any) {
		resp := args[0].(*protocol.Response)
		c.recycleFromRequest(req, resp)

		if loc := resp.Header.Get(protocol.HeaderLocation); loc != "" &&
			resp.StatusCode >= 300 && resp.StatusCode < 400 {
			c.redirect(t, loc)
			return
		}
		if t.opts.Success != nil {
			t.opts.Success(resp)
		}
	})

	req.Once(EventError, func(args ...any) {
		err := args[0].(error)
		c.recycleFromRequest(req, nil)
		if t.opts.Error != nil {
			t.opts.Error(err)
		}
	})

	if t.opts.Progress != nil {
		progress := t.opts.Progress
		req.On(EventProgress, func(args ...any) {
			progress(args[0].([]byte))
		})
	}

	req.attachConnection(conn)

	if !self {
		if st := conn.State(); st == pool.StateClosing || st == pool.StateClosed {
			// The redial is only valid while the pool still owns the
			// connection; if it was dropped in the meantime the request
			// has already failed and the idle event re-drives the queue.
			if !c.pool.Reconnect(conn) {
				return
			}
			c.log.Debug().Str("origin", t.origin).Int64("conn", conn.ID()).Msg("reconnecting dead pooled connection")
		}
	}

	req.End()
}

// buildRequest folds the task's data into either the body or the query
// string, the way the method dictates.
func (c *Client) buildRequest(t *task) *Request {
	req := newRequest(t.u, t.opts)
	msg := req.Message()

	method := "GET"
	if t.opts.Method != "" {
		method = strings.ToUpper(t.opts.Method)
	}
	msg.Method = method

	if !msg.Header.Has(protocol.HeaderUserAgent) && c.cfg.UserAgent != "" {
		msg.Header.Set(protocol.HeaderUserAgent, c.cfg.UserAgent)
	}

	if t.opts.Data == nil {
		return req
	}

	bodyMethod := method == "POST" || method == "PUT" || method == "PATCH" || method == "DELETE"
	if bodyMethod {
		switch data := t.opts.Data.(type) {
		case string:
			msg.WriteBody([]byte(data))
		case []byte:
			msg.WriteBody(data)
		case map[string]string:
			msg.WriteBody([]byte(protocol.EncodeQuery(data)))
		case []protocol.Part:
			body, contentType, err := protocol.EncodeMultipart(data)
			if err == nil {
				msg.Header.Set("Content-Type", contentType)
				msg.WriteBody(body)
			}
		}
		return req
	}

	var extra string
	switch data := t.opts.Data.(type) {
	case string:
		extra = data
	case map[string]string:
		extra = protocol.EncodeQuery(data)
	}
	if extra != "" {
		if msg.URL.RawQuery != "" {
			msg.URL.RawQuery += "&" + extra
		} else {
			msg.URL.RawQuery = extra
		}
	}
	return req
}

// recycleFromRequest returns the request's connection to the pool. Reuse
// requires HTTP/1.1 and an explicit keep-alive agreement on both sides;
// anything else closes the socket. The pool's idle event fires either way.
// Dedicated per-request connections are simply closed.
func (c *Client) recycleFromRequest(req *Request, resp *protocol.Response) {
	conn := req.detach()
	if conn == nil {
		return
	}

	if req.selfConnection {
		conn.ClearCallbacks()
		conn.Close()
		return
	}

	keep := req.Message().Proto == "HTTP/1.1" &&
		strings.EqualFold(req.Message().Header.Get(protocol.HeaderConnection), protocol.ConnectionKeepAlive) &&
		resp != nil &&
		strings.EqualFold(resp.Header.Get(protocol.HeaderConnection), protocol.ConnectionKeepAlive)

	if !keep {
		conn.Close()
	}
	c.pool.Recycle(conn)
}

// redirect re-queues the task against the Location target, at the head of
// the resolved origin's queue.
func (c *Client) redirect(t *task, location string) {
	t.opts.redirectCount++
	if t.opts.redirectCount > t.opts.maxRedirects() {
		c.deliverError(t, ErrTooManyRedirects)
		return
	}

	ref, err := url.Parse(location)
	if err != nil {
		c.deliverError(t, ErrInvalidURL)
		return
	}
	target := t.u.ResolveReference(ref)

	origin, useTLS, err := parseOrigin(target)
	if err != nil {
		c.deliverError(t, err)
		return
	}

	c.log.Debug().Str("from", t.u.String()).Str("to", target.String()).Int("hop", t.opts.redirectCount).Msg("following redirect")

	next := &task{u: target, origin: origin, tls: useTLS, opts: t.opts}
	c.mu.Lock()
	c.queues[origin] = append([]*task{next}, c.queues[origin]...)
	c.mu.Unlock()

	c.process(origin)
}

func (c *Client) deliverError(t *task, err error) {
	if t.opts.Error != nil {
		t.opts.Error(err)
	}
}
