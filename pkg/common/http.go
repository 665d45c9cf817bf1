package common

import (
	"crypto/tls"
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the trimmed module version embedded at build time.
func Version() string {
	return strings.TrimSpace(version)
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper by setting the User-Agent header on a
// clone of the request.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// CloseIdleConnections forwards to the wrapped transport so http.Client's
// CloseIdleConnections reaches the pool.
func (t *userAgentTransport) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if c, ok := t.transport.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}

// HTTPClient returns an http client with a default user-agent set. Each call
// gets its own connection pool.
func HTTPClient(timeout time.Duration) *http.Client {
	return HTTPClientWithTLS(timeout, false)
}

// HTTPClientWithTLS is HTTPClient but optionally skips TLS certificate
// verification, for monitor hosts behind self-signed proxies.
func HTTPClientWithTLS(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: &userAgentTransport{
			transport: transport,
			userAgent: "eg4monitor/" + Version(),
		},
		Timeout: timeout,
	}
}
