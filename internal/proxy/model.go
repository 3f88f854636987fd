package proxy

import "regexp"

// modelPattern pulls the model segment out of relayed paths, covering
// both models/ and tunedModels/ with or without an :action suffix.
var modelPattern = regexp.MustCompile(`(?:models|tunedModels)/([^:/]+)`)

// ParseModelName extracts the model name from a request path, or ""
// when the path carries none.
func ParseModelName(path string) string {
	m := modelPattern.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}
