package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// probePayload is the minimal countTokens body used to exercise a
// credential without generating content.
const probePayload = `{"contents":[{"parts":[{"text":"hello"}]}]}`

// Validator probes credentials against the live upstream. Probes and
// catalog fetches carry separate deadlines.
type Validator struct {
	urls      *URLBuilder
	probe     *http.Client
	discovery *http.Client
}

// NewValidator builds a Validator. A non-nil client overrides both
// paths, which tests use to force fast timeouts.
func NewValidator(urls *URLBuilder, client *http.Client) *Validator {
	if client != nil {
		return &Validator{urls: urls, probe: client, discovery: client}
	}
	return &Validator{urls: urls, probe: NewProbeClient(), discovery: NewDiscoveryClient()}
}

// Probe sends a countTokens request under the given credential and
// model. It reports whether the credential worked, plus a status code
// and message suitable for failure recording. Timeouts and transport
// errors never reach the upstream, so they yield synthetic 408/500
// codes with messages that say the failure was on this side.
func (v *Validator) Probe(ctx context.Context, secret, model string) (bool, int, string) {
	endpoint := v.urls.Build(ctx, fmt.Sprintf("models/%s:countTokens", model))
	endpoint += "?key=" + url.QueryEscape(secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewReader([]byte(probePayload)))
	if err != nil {
		return false, 500, fmt.Sprintf("build probe request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.probe.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return false, 408, "validation request timed out before the upstream responded"
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return false, 408, "validation request timed out before the upstream responded"
		}
		return false, 500, fmt.Sprintf("validation client error before the upstream responded: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, http.StatusOK, "validation successful"
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return false, resp.StatusCode, string(body)
}
