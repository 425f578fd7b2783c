package client

import "errors"

var (
	// ErrInvalidURL means the request URL has no usable host.
	ErrInvalidURL = errors.New("invalid url")

	// ErrTooManyRedirects means the redirect budget was exhausted.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrRequestReused means a request was written after it already went
	// on the wire.
	ErrRequestReused = errors.New("request already sent")

	// ErrConnectionClosed means the peer closed before the response was
	// complete.
	ErrConnectionClosed = errors.New("connection closed before response completed")
)

// TransportError is a connection-level failure, carrying the legacy
// numeric code reported through connection error callbacks: 1 for connect
// failures and timeouts, 128 for read timeouts.
type TransportError struct {
	Code    int
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// ProtocolError is a malformed response: bad status line or bad chunk
// framing.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}
