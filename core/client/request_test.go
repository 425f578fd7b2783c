package client

import (
	"net/url"
	"testing"

	"github.com/searchktools/fast-client/core/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrigin(t *testing.T) {
	cases := []struct {
		rawURL string
		origin string
		tls    bool
		ok     bool
	}{
		{"http://example.com/x", "tcp://example.com:80", false, true},
		{"http://example.com:8080/", "tcp://example.com:8080", false, true},
		{"https://example.com/", "tcp://example.com:443", true, true},
		{"https://example.com:8443/", "tcp://example.com:8443", true, true},
		{"http:///path", "", false, false},
		{"ftp://example.com/", "", false, false},
	}

	for _, c := range cases {
		u, err := url.Parse(c.rawURL)
		require.NoError(t, err, c.rawURL)

		origin, useTLS, err := parseOrigin(u)
		if !c.ok {
			assert.Error(t, err, c.rawURL)
			continue
		}
		require.NoError(t, err, c.rawURL)
		assert.Equal(t, c.origin, origin, c.rawURL)
		assert.Equal(t, c.tls, useTLS, c.rawURL)
	}
}

func newParsedRequest(t *testing.T) *Request {
	t.Helper()
	u, err := url.Parse("http://h/")
	require.NoError(t, err)
	r := newRequest(u, &Options{})
	r.state = stateRecvHead
	return r
}

func TestHandleDataContentLength(t *testing.T) {
	r := newParsedRequest(t)

	var got *protocol.Response
	r.Once(EventSuccess, func(args ...any) { got = args[0].(*protocol.Response) })

	r.handleData([]byte("HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nbo"))
	require.Nil(t, got, "response incomplete")

	// Bytes past the declared length are dropped.
	r.handleData([]byte("dyEXTRA"))
	require.NotNil(t, got)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "body", got.Body.String())
}

func TestHandleDataSplitHeader(t *testing.T) {
	r := newParsedRequest(t)

	var got *protocol.Response
	r.Once(EventSuccess, func(args ...any) { got = args[0].(*protocol.Response) })

	r.handleData([]byte("HTTP/1.1 200 OK\r\nContent-Le"))
	r.handleData([]byte("ngth: 2\r\n\r\n"))
	require.Nil(t, got)
	r.handleData([]byte("ok"))
	require.NotNil(t, got)
	assert.Equal(t, "ok", got.Body.String())
}

func TestHandleDataChunked(t *testing.T) {
	r := newParsedRequest(t)

	var got *protocol.Response
	var progress []string
	r.Once(EventSuccess, func(args ...any) { got = args[0].(*protocol.Response) })
	r.On(EventProgress, func(args ...any) { progress = append(progress, string(args[0].([]byte))) })

	r.handleData([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n"))
	r.handleData([]byte("3\r\ndef\r\n0\r\n\r\n"))

	require.NotNil(t, got)
	assert.Equal(t, "abcdef", got.Body.String())
	assert.Equal(t, []string{"abc", "def"}, progress)
}

func TestHandleDataMalformedStatusLine(t *testing.T) {
	r := newParsedRequest(t)

	var got error
	r.Once(EventError, func(args ...any) { got = args[0].(error) })

	r.handleData([]byte("NOT/HTTP nonsense\r\n\r\n"))

	var perr *ProtocolError
	require.ErrorAs(t, got, &perr)
}

func TestHandleCloseBeforeComplete(t *testing.T) {
	r := newParsedRequest(t)

	var got error
	r.Once(EventError, func(args ...any) { got = args[0].(error) })

	r.handleData([]byte("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"))
	r.handleClose()

	assert.ErrorIs(t, got, ErrConnectionClosed)
}

func TestHandleCloseEndsUntilCloseBody(t *testing.T) {
	r := newParsedRequest(t)

	var got *protocol.Response
	r.Once(EventSuccess, func(args ...any) { got = args[0].(*protocol.Response) })

	r.handleData([]byte("HTTP/1.1 200 OK\r\n\r\nall of it"))
	require.Nil(t, got)
	r.handleClose()

	require.NotNil(t, got)
	assert.Equal(t, "all of it", got.Body.String())
}

func TestSuccessAndErrorAreExclusive(t *testing.T) {
	r := newParsedRequest(t)

	successes, errors := 0, 0
	r.On(EventSuccess, func(args ...any) { successes++ })
	r.On(EventError, func(args ...any) { errors++ })

	r.handleData([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	r.handleClose()
	r.fail(ErrConnectionClosed)
	r.succeed()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, errors)
}

func TestCompletedRequestCannotResend(t *testing.T) {
	r := newParsedRequest(t)

	events := 0
	r.On(EventError, func(args ...any) { events++ })
	r.On(EventSuccess, func(args ...any) { events++ })

	r.fail(ErrConnectionClosed)

	// A late connect callback must not push a finished request back onto
	// the wire or disturb its terminal state.
	r.doSend()

	r.mu.Lock()
	st, writable := r.state, r.writable
	r.mu.Unlock()

	assert.Equal(t, 1, events)
	assert.Equal(t, stateFailed, st)
	assert.False(t, writable)
}

func TestApplyOptionsDefaultsAndOverrides(t *testing.T) {
	u, err := url.Parse("http://example.com/path")
	require.NoError(t, err)

	r := newRequest(u, &Options{
		Method:  "post",
		Version: "1.0",
		Headers: map[string]string{"X-Trace": "abc"},
		Query:   map[string]string{"k": "v 1"},
	})
	r.Message().WriteBody([]byte("payload"))

	r.mu.Lock()
	r.applyOptionsLocked()
	r.mu.Unlock()

	msg := r.Message()
	assert.Equal(t, "HTTP/1.0", msg.Proto)
	assert.Equal(t, "k=v%201", msg.URL.RawQuery)
	assert.Equal(t, "abc", msg.Header.Get("X-Trace"))
	assert.Equal(t, "example.com", msg.Header.Get("Host"))
	assert.Equal(t, "keep-alive", msg.Header.Get("Connection"))
	assert.Equal(t, "application/x-www-form-urlencoded", msg.Header.Get("Content-Type"))
	assert.Equal(t, "7", msg.Header.Get("Content-Length"))
}
