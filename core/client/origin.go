package client

import (
	"net"
	"net/url"

	"golang.org/x/net/idna"
)

// parseOrigin derives the canonical pooling key "tcp://host:port" from a
// request URL. Hostnames are normalised to their ASCII (punycode) form.
func parseOrigin(u *url.URL) (origin string, useTLS bool, err error) {
	host := u.Hostname()
	if host == "" {
		return "", false, ErrInvalidURL
	}

	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}

	port := u.Port()
	switch u.Scheme {
	case "http":
		if port == "" {
			port = "80"
		}
	case "https":
		useTLS = true
		if port == "" {
			port = "443"
		}
	default:
		return "", false, ErrInvalidURL
	}

	return "tcp://" + net.JoinHostPort(host, port), useTLS, nil
}
