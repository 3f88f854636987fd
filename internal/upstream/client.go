package upstream

import (
	"net"
	"net/http"
	"time"

	"gemini-synapse/internal/constants"
)

// NewRelayClient builds the shared HTTP client used for relayed
// requests. The generous timeout covers long streaming responses; the
// transport is sized for many concurrent streams against one host.
func NewRelayClient() *http.Client {
	return &http.Client{
		Timeout: constants.UpstreamTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   constants.UpstreamDialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxConnsPerHost:     constants.UpstreamMaxConnsPerHost,
			MaxIdleConnsPerHost: constants.UpstreamMaxIdleConnsPerHost,
			IdleConnTimeout:     constants.UpstreamIdleConnTimeout,
			TLSHandshakeTimeout: constants.UpstreamTLSHandshakeTimeout,
		},
	}
}

// NewProbeClient builds the short-timeout client used by validation
// probes.
func NewProbeClient() *http.Client {
	return &http.Client{Timeout: constants.ValidationProbeTimeout}
}

// NewDiscoveryClient builds the client used for model catalog fetches.
func NewDiscoveryClient() *http.Client {
	return &http.Client{Timeout: constants.ModelDiscoveryTimeout}
}
