package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
)

func newTestValidator(t *testing.T, upstreamURL string, client *http.Client) *Validator {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := settings.NewRegistry(st)
	require.NoError(t, reg.Set(context.Background(), settings.KeyUpstreamBaseURL, upstreamURL))
	return NewValidator(NewURLBuilder(reg), client)
}

func TestProbeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash-lite:countTokens", r.URL.Path)
		assert.Equal(t, "sk-probe", r.URL.Query().Get("key"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"contents":[{"parts":[{"text":"hello"}]}]}`, string(body))

		w.Write([]byte(`{"totalTokens":1}`))
	}))
	defer server.Close()

	v := newTestValidator(t, server.URL, nil)
	ok, status, message := v.Probe(context.Background(), "sk-probe", "gemini-2.5-flash-lite")
	assert.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "validation successful", message)
}

func TestProbeUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"key disabled"}`))
	}))
	defer server.Close()

	v := newTestValidator(t, server.URL, nil)
	ok, status, message := v.Probe(context.Background(), "sk-rejected", "gemini-2.5-flash-lite")
	assert.False(t, ok)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, message, "key disabled")
}

func TestProbeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	v := newTestValidator(t, server.URL, &http.Client{Timeout: 20 * time.Millisecond})
	ok, status, message := v.Probe(context.Background(), "sk-slow", "gemini-2.5-flash-lite")
	assert.False(t, ok)
	assert.Equal(t, 408, status)
	assert.Equal(t, "validation request timed out before the upstream responded", message)
}

func TestValidatorClientDeadlines(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewProbeClient().Timeout)
	assert.Equal(t, 15*time.Second, NewDiscoveryClient().Timeout)

	v := NewValidator(nil, nil)
	assert.Equal(t, 10*time.Second, v.probe.Timeout)
	assert.Equal(t, 15*time.Second, v.discovery.Timeout)
}

func TestProbeTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	v := newTestValidator(t, deadURL, nil)
	ok, status, message := v.Probe(context.Background(), "sk-unreachable", "gemini-2.5-flash-lite")
	assert.False(t, ok)
	assert.Equal(t, 500, status)
	assert.Contains(t, message, "client error")
}

func TestListModelsFiltersAndSorts(t *testing.T) {
	catalog := `{
		"models": [
			{"name": "models/gemini-2.5-pro", "displayName": "Gemini 2.5 Pro",
			 "supportedGenerationMethods": ["generateContent", "countTokens"]},
			{"name": "models/embedding-001", "displayName": "Embedding",
			 "supportedGenerationMethods": ["embedContent"]},
			{"name": "models/gemini-token-counter", "displayName": "Token Counter",
			 "supportedGenerationMethods": ["generateContent"]},
			{"name": "models/gemini-2.5-flash", "displayName": "Gemini 2.5 Flash",
			 "supportedGenerationMethods": ["generateContent"]}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		assert.Equal(t, "sk-catalog", r.URL.Query().Get("key"))
		w.Write([]byte(catalog))
	}))
	defer server.Close()

	v := newTestValidator(t, server.URL, nil)
	models, err := v.ListModels(context.Background(), "sk-catalog")
	require.NoError(t, err)

	require.Len(t, models, 2)
	assert.Equal(t, "gemini-2.5-flash", models[0].Name)
	assert.Equal(t, "gemini-2.5-pro", models[1].Name)
}

func TestListModelsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer server.Close()

	v := newTestValidator(t, server.URL, nil)
	_, err := v.ListModels(context.Background(), "sk-bogus")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "invalid key")
}
