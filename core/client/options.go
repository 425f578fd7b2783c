package client

import (
	"crypto/tls"

	"github.com/searchktools/fast-client/core/protocol"
)

// DefaultMaxRedirects bounds automatic redirect following when the caller
// does not set a limit.
const DefaultMaxRedirects = 5

// RedirectPolicy controls automatic 3xx handling.
type RedirectPolicy struct {
	// Max is the redirect budget for one logical request. Zero means the
	// default.
	Max int
}

// Options is the per-request option bag.
type Options struct {
	// Method defaults to GET.
	Method string
	// Version selects "1.0" or "1.1" (the default).
	Version string
	// Headers are applied over the computed defaults.
	Headers map[string]string
	// Data becomes the request body for body-carrying methods. For other
	// methods a string or map[string]string is folded into the query
	// string, and []byte or []protocol.Part data is not sent. Accepted
	// shapes: string, []byte, map[string]string (form) and
	// []protocol.Part (multipart).
	Data any
	// Query replaces the URL query string; map[string]string or string.
	Query any
	// Success receives the parsed response. When nil the issuing call
	// suspends and returns the response directly.
	Success func(*protocol.Response)
	// Error receives the request failure.
	Error func(error)
	// Progress receives each decoded body chunk. The slice is only valid
	// during the call.
	Progress func([]byte)
	// Context carries TLS/transport options for this one request. A
	// request with its own context is served on a dedicated connection
	// outside the shared pool (admission does not apply) and the
	// connection is closed when the exchange ends.
	Context *tls.Config
	// AllowRedirects bounds automatic redirect handling.
	AllowRedirects RedirectPolicy

	// redirectCount tracks hops across the redirect chain of one logical
	// request.
	redirectCount int
}

func (o *Options) maxRedirects() int {
	if o.AllowRedirects.Max > 0 {
		return o.AllowRedirects.Max
	}
	return DefaultMaxRedirects
}
