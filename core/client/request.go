package client

import (
	"bytes"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/searchktools/fast-client/core/emitter"
	"github.com/searchktools/fast-client/core/pool"
	"github.com/searchktools/fast-client/core/protocol"
)

// Request events.
const (
	EventSuccess  = "success"
	EventError    = "error"
	EventProgress = "progress"
)

type requestState int

const (
	stateInit requestState = iota
	stateAttached
	stateSending
	stateRecvHead
	stateRecvLen
	stateRecvChunk
	stateRecvUntilClose
	stateDone
	stateFailed
)

var headerTerminator = []byte("\r\n\r\n")

// Request drives one HTTP/1.1 exchange over one connection: serialise,
// send, parse, complete. Completion is reported through the success and
// error events, which are mutually exclusive and fire at most once.
type Request struct {
	*emitter.Emitter

	opts *Options
	msg  *protocol.Request
	conn *pool.Connection

	// selfConnection marks a connection allocated outside the pool for
	// this request alone; it is closed, never recycled.
	selfConnection bool

	mu       sync.Mutex
	state    requestState
	writable bool
	response *protocol.Response
	recvBuf  []byte
	expected int
	chunker  *protocol.ChunkedDecoder

	// body chunks decoded while holding mu, flushed as progress events
	// after unlocking.
	pendingChunks [][]byte
}

func newRequest(u *url.URL, opts *Options) *Request {
	return &Request{
		Emitter:  emitter.New(),
		opts:     opts,
		msg:      protocol.NewRequest(u),
		state:    stateInit,
		writable: true,
	}
}

// Message exposes the outgoing request being built.
func (r *Request) Message() *protocol.Request {
	return r.msg
}

// Connection returns the attached connection, nil before attach or after
// detach.
func (r *Request) Connection() *pool.Connection {
	return r.conn
}

// attachConnection binds the request to a connection and takes over its
// message, close and error callback slots for the lifetime of the
// exchange. The connect slot is filled by End.
func (r *Request) attachConnection(c *pool.Connection) {
	r.mu.Lock()
	r.conn = c
	r.state = stateAttached
	r.mu.Unlock()

	c.SetOnMessage(func(_ *pool.Connection, data []byte) { r.handleData(data) })
	c.SetOnClose(func(*pool.Connection) { r.handleClose() })
	c.SetOnError(func(_ *pool.Connection, code int, msg string) {
		r.fail(&TransportError{Code: code, Message: msg})
	})
}

// detach releases the connection without touching its callback slots (the
// pool clears them on recycle) and returns it.
func (r *Request) detach() *pool.Connection {
	r.mu.Lock()
	c := r.conn
	r.conn = nil
	r.mu.Unlock()
	return c
}

// End finalises the request head and sends it, now when the connection is
// established, otherwise as soon as it connects.
func (r *Request) End() {
	r.mu.Lock()
	if !r.writable {
		r.mu.Unlock()
		r.fail(ErrRequestReused)
		return
	}
	r.applyOptionsLocked()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return
	}
	// The connect slot is filled only once the head is final, so a
	// connection that establishes early cannot send an unfinished request.
	conn.SetOnConnect(func(*pool.Connection) { r.doSend() })
	if conn.State() == pool.StateEstablished {
		r.doSend()
	}
}

// applyOptionsLocked folds the option bag into the outgoing message and
// fills the computed defaults.
func (r *Request) applyOptionsLocked() {
	o := r.opts
	msg := r.msg

	if o.Method != "" {
		msg.Method = strings.ToUpper(o.Method)
	}
	if o.Version != "" {
		msg.Proto = "HTTP/" + o.Version
	}

	if len(o.Headers) > 0 {
		keys := make([]string, 0, len(o.Headers))
		for k := range o.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg.Header.Set(k, o.Headers[k])
		}
	}

	switch q := o.Query.(type) {
	case nil:
	case string:
		msg.URL.RawQuery = q
	case map[string]string:
		msg.URL.RawQuery = protocol.EncodeQuery(q)
	}

	if !msg.Header.Has(protocol.HeaderHost) {
		msg.Header.Set(protocol.HeaderHost, msg.URL.Host)
	}
	if !msg.Header.Has(protocol.HeaderConnection) {
		msg.Header.Set(protocol.HeaderConnection, protocol.ConnectionKeepAlive)
	}

	if msg.BodyLen() > 0 {
		if !msg.Header.Has(protocol.HeaderContentType) {
			msg.Header.Set(protocol.HeaderContentType, "application/x-www-form-urlencoded")
		}
		msg.Header.Set(protocol.HeaderContentLength, strconv.Itoa(msg.BodyLen()))
	}
}

// doSend serialises the message onto the wire. A request hits the wire
// exactly once: the connect callback and End may race here, so a second
// call is a silent no-op. The reuse error is End's to report.
func (r *Request) doSend() {
	r.mu.Lock()
	if !r.writable {
		r.mu.Unlock()
		return
	}
	r.writable = false
	r.state = stateSending
	payload := r.msg.Serialize()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		r.fail(pool.ErrNotEstablished)
		return
	}
	if err := conn.Send(payload); err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	if r.state == stateSending {
		r.state = stateRecvHead
	}
	r.mu.Unlock()
}

// handleData consumes the next piece of the response stream.
func (r *Request) handleData(data []byte) {
	r.mu.Lock()
	r.pendingChunks = r.pendingChunks[:0]

	var failErr error
	done := false

	switch r.state {
	case stateDone, stateFailed:
		r.mu.Unlock()
		return

	case stateSending, stateRecvHead, stateAttached:
		r.recvBuf = append(r.recvBuf, data...)
		idx := bytes.Index(r.recvBuf, headerTerminator)
		if idx == -1 {
			r.mu.Unlock()
			return
		}

		head := r.recvBuf[:idx]
		rest := r.recvBuf[idx+len(headerTerminator):]
		r.recvBuf = nil

		resp, err := protocol.ParseResponseHead(head)
		if err != nil {
			failErr = &ProtocolError{Reason: "malformed status line"}
			break
		}
		r.response = resp
		done, failErr = r.enterBodyModeLocked(rest)

	case stateRecvLen:
		done = r.consumeLengthLocked(data)

	case stateRecvChunk:
		done, failErr = r.consumeChunkedLocked(data)

	case stateRecvUntilClose:
		r.appendBodyLocked(data)
	}

	if done {
		r.state = stateDone
		r.writable = false
	} else if failErr != nil {
		r.state = stateFailed
		r.writable = false
	}
	resp := r.response
	chunks := r.pendingChunks
	r.mu.Unlock()

	for _, chunk := range chunks {
		r.Emit(EventProgress, chunk)
	}
	if done {
		r.Emit(EventSuccess, resp)
	} else if failErr != nil {
		r.Emit(EventError, failErr)
	}
}

// enterBodyModeLocked decides how the body ends and consumes whatever body
// bytes arrived along with the head.
func (r *Request) enterBodyModeLocked(rest []byte) (done bool, failErr error) {
	resp := r.response

	cl, hasCL := resp.ContentLength()
	if (hasCL && cl == 0) || resp.BodilessStatus() {
		return true, nil
	}

	if resp.Chunked() {
		r.state = stateRecvChunk
		r.chunker = protocol.NewChunkedDecoder(r.appendBodyLocked)
		if len(rest) > 0 {
			return r.consumeChunkedLocked(rest)
		}
		return false, nil
	}

	if hasCL {
		r.state = stateRecvLen
		r.expected = cl
		if len(rest) > 0 {
			return r.consumeLengthLocked(rest), nil
		}
		return false, nil
	}

	r.state = stateRecvUntilClose
	if len(rest) > 0 {
		r.appendBodyLocked(rest)
	}
	return false, nil
}

// consumeLengthLocked appends up to the declared Content-Length and
// reports completion; bytes past the declared length are discarded.
func (r *Request) consumeLengthLocked(data []byte) bool {
	need := r.expected - r.response.Body.Len()
	if len(data) > need {
		data = data[:need]
	}
	if len(data) > 0 {
		r.appendBodyLocked(data)
	}
	return r.response.Body.Len() >= r.expected
}

func (r *Request) consumeChunkedLocked(data []byte) (bool, error) {
	done, err := r.chunker.Feed(data)
	if err != nil {
		return false, &ProtocolError{Reason: err.Error()}
	}
	return done, nil
}

func (r *Request) appendBodyLocked(chunk []byte) {
	r.response.Body.Write(chunk)
	r.pendingChunks = append(r.pendingChunks, chunk)
}

// handleClose reacts to the peer closing the connection: completion in
// read-until-close mode, a failure in any other non-terminal state.
func (r *Request) handleClose() {
	r.mu.Lock()
	st := r.state
	r.mu.Unlock()

	switch st {
	case stateDone, stateFailed:
	case stateRecvUntilClose:
		r.succeed()
	default:
		r.fail(ErrConnectionClosed)
	}
}

// succeed fires the success event once, unless the request already ended.
// A completed request is no longer writable, so a late connect callback
// cannot push it back onto the wire.
func (r *Request) succeed() {
	r.mu.Lock()
	if r.state == stateDone || r.state == stateFailed {
		r.mu.Unlock()
		return
	}
	r.state = stateDone
	r.writable = false
	resp := r.response
	r.mu.Unlock()

	r.Emit(EventSuccess, resp)
}

// fail fires the error event once, unless the request already ended. Like
// succeed it revokes writability so the request cannot be resurrected.
func (r *Request) fail(err error) {
	r.mu.Lock()
	if r.state == stateDone || r.state == stateFailed {
		r.mu.Unlock()
		return
	}
	r.state = stateFailed
	r.writable = false
	r.mu.Unlock()

	r.Emit(EventError, err)
}
