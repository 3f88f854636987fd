package upstream

import (
	"context"
	"net/url"
	"strings"

	"gemini-synapse/internal/settings"
)

// URLBuilder joins relayed request paths onto the configured upstream
// base URL, reconciling the v1beta version segment so it appears exactly
// once regardless of which side carries it.
type URLBuilder struct {
	settings *settings.Registry
}

func NewURLBuilder(reg *settings.Registry) *URLBuilder {
	return &URLBuilder{settings: reg}
}

// Build produces the absolute upstream URL for path. The operation is
// idempotent: feeding the resulting path back in yields the same URL.
func (b *URLBuilder) Build(ctx context.Context, path string) string {
	base := b.settings.UpstreamBaseURL(ctx)
	return join(base, path)
}

func join(base, path string) string {
	path = strings.Trim(path, "/")

	basePath := ""
	if parsed, err := url.Parse(base); err == nil {
		basePath = parsed.Path
	}

	if !strings.Contains(basePath, "v1beta") {
		if !strings.HasPrefix(path, "v1beta/") && path != "v1beta" {
			path = "v1beta/" + path
		}
	} else {
		path = strings.TrimPrefix(path, "v1beta/")
	}

	return strings.TrimRight(base, "/") + "/" + path
}
