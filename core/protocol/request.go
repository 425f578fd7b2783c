package protocol

import (
	"bytes"
	"net/url"
	"sort"
	"strings"
)

// Request is an outgoing HTTP/1.1 request. Headers keep insertion order;
// the body is buffered so redirects can replay it.
type Request struct {
	Method string
	URL    *url.URL
	Proto  string // "HTTP/1.0" or "HTTP/1.1"
	Header Header

	body bytes.Buffer
}

// NewRequest creates a GET request for u.
func NewRequest(u *url.URL) *Request {
	return &Request{
		Method: "GET",
		URL:    u,
		Proto:  "HTTP/1.1",
	}
}

// WriteBody appends p to the buffered request body.
func (r *Request) WriteBody(p []byte) {
	r.body.Write(p)
}

// BodyLen returns the buffered body size in bytes.
func (r *Request) BodyLen() int {
	return r.body.Len()
}

// BodyBytes returns the buffered body.
func (r *Request) BodyBytes() []byte {
	return r.body.Bytes()
}

// requestTarget renders the origin-form target: path plus query, "/" when
// the path is empty.
func (r *Request) requestTarget() string {
	target := r.URL.RequestURI()
	if target == "" {
		target = "/"
	}
	return target
}

// Serialize renders the request line, the headers in insertion order, the
// blank separator and the body.
func (r *Request) Serialize() []byte {
	var buf bytes.Buffer
	buf.Grow(256 + r.body.Len())

	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.requestTarget())
	buf.WriteByte(' ')
	buf.WriteString(r.Proto)
	buf.WriteString("\r\n")

	r.Header.WriteTo(&buf)
	buf.WriteString("\r\n")

	buf.Write(r.body.Bytes())
	return buf.Bytes()
}

// EncodeQuery renders a form map as an RFC 3986 query string: percent
// escaping with %20 for spaces, keys in sorted order.
func EncodeQuery(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(values[k]))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
