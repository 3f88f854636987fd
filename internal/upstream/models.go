package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Model is one generateContent-capable upstream model.
type Model struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// StatusError reports a non-200 upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// ListModels fetches the upstream model catalog under the given
// credential, filtered to models that support generateContent and are
// not token-counting variants, sorted by display name.
func (v *Validator) ListModels(ctx context.Context, secret string) ([]Model, error) {
	endpoint := v.urls.Build(ctx, "models") + "?key=" + url.QueryEscape(secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}

	resp, err := v.discovery.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var models []Model
	for _, m := range gjson.GetBytes(body, "models").Array() {
		name := m.Get("name").String()
		if strings.Contains(strings.ToLower(name), "token") {
			continue
		}
		supported := false
		for _, method := range m.Get("supportedGenerationMethods").Array() {
			if method.String() == "generateContent" {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		models = append(models, Model{
			Name:        strings.TrimPrefix(name, "models/"),
			DisplayName: m.Get("displayName").String(),
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].DisplayName < models[j].DisplayName
	})
	return models, nil
}
