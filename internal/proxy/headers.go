package proxy

import "net/http"

// Hop-by-hop and credential-bearing headers that never cross the proxy
// boundary in either direction.
var excludedRequestHeaders = map[string]bool{
	"Host":           true,
	"Authorization":  true,
	"X-Goog-Api-Key": true,
	"Content-Length": true,
	"Cookie":         true,
	"Set-Cookie":     true,
	// Compression is negotiated by the transport, which then
	// decompresses transparently. Forwarding the client's value would
	// leave the relay holding encoded bytes it strips the
	// Content-Encoding header from.
	"Accept-Encoding": true,
}

var excludedResponseHeaders = map[string]bool{
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
}

// sanitizeRequestHeaders copies client headers, dropping everything the
// upstream must not see. The credential is injected separately per
// attempt.
func sanitizeRequestHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for name, values := range in {
		if excludedRequestHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}

// copyResponseHeaders forwards upstream response headers minus the
// entity framing ones, which the relay re-derives.
func copyResponseHeaders(dst http.Header, src http.Header) {
	for name, values := range src {
		if excludedResponseHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
