package constants

import "time"

// Upstream HTTP client sizing. One shared client serves every relayed
// request, so the pool has to absorb many concurrent streams.
const (
	UpstreamTimeout             = 300 * time.Second
	UpstreamMaxConnsPerHost     = 120
	UpstreamMaxIdleConnsPerHost = 20
	UpstreamIdleConnTimeout     = 90 * time.Second
	UpstreamDialTimeout         = 10 * time.Second
	UpstreamTLSHandshakeTimeout = 10 * time.Second
)

// Validation probes and catalog fetches run outside the relay path and
// get short leashes. Discovery pulls the full model list, so it gets a
// little longer than a single-model probe.
const (
	ValidationProbeTimeout = 10 * time.Second
	ModelDiscoveryTimeout  = 15 * time.Second
)

// HTTP server timeouts.
const (
	ServerReadHeaderTimeout = 10 * time.Second
	ServerShutdownTimeout   = 10 * time.Second
)
