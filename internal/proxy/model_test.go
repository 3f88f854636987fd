package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModelName(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"v1beta/models/gemini-2.5-pro:generateContent", "gemini-2.5-pro"},
		{"v1beta/models/gemini-2.5-flash:streamGenerateContent", "gemini-2.5-flash"},
		{"v1beta/tunedModels/my-tuned-model:generateContent", "my-tuned-model"},
		{"v1beta/models/gemini-2.5-pro", "gemini-2.5-pro"},
		{"v1beta/models", ""},
		{"v1beta/cachedContents", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseModelName(tc.path), tc.path)
	}
}

func TestSanitizeRequestHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Authorization", "Bearer client-key")
	in.Set("X-Goog-Api-Key", "client-key")
	in.Set("Cookie", "session=abc")
	in.Set("Content-Length", "42")
	in.Set("Accept-Encoding", "gzip, br")
	in.Set("Content-Type", "application/json")
	in.Set("X-Custom", "kept")

	out := sanitizeRequestHeaders(in)
	assert.Empty(t, out.Get("Authorization"))
	assert.Empty(t, out.Get("X-Goog-Api-Key"))
	assert.Empty(t, out.Get("Cookie"))
	assert.Empty(t, out.Get("Content-Length"))
	assert.Empty(t, out.Get("Accept-Encoding"))
	assert.Equal(t, "application/json", out.Get("Content-Type"))
	assert.Equal(t, "kept", out.Get("X-Custom"))
}

func TestCopyResponseHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Encoding", "gzip")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Content-Length", "1000")
	src.Set("Content-Type", "application/json")
	src.Add("X-Upstream", "a")
	src.Add("X-Upstream", "b")

	dst := http.Header{}
	copyResponseHeaders(dst, src)
	assert.Empty(t, dst.Get("Content-Encoding"))
	assert.Empty(t, dst.Get("Transfer-Encoding"))
	assert.Empty(t, dst.Get("Content-Length"))
	assert.Equal(t, "application/json", dst.Get("Content-Type"))
	assert.Equal(t, []string{"a", "b"}, dst.Values("X-Upstream"))
}
