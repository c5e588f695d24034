package probe

import (
	"fmt"
	"sort"
)

var tokenKeys = []string{"token", "access_token", "accessToken"}

// extractToken looks for a bearer token at the top level of a JSON object and
// then under the "data" and "result" wrappers, since vendors disagree on shape.
func extractToken(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	if tok, ok := tokenIn(m); ok {
		return tok, true
	}
	for _, wrapper := range []string{"data", "result"} {
		if inner, ok := m[wrapper].(map[string]any); ok {
			if tok, ok := tokenIn(inner); ok {
				return tok, true
			}
		}
	}
	return "", false
}

func tokenIn(m map[string]any) (string, bool) {
	for _, k := range tokenKeys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// describeShape is used in auth errors to show what the vendor sent instead.
func describeShape(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Sprintf("%T", v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%v", keys)
}

// missingFields returns the required keys absent from m, in order.
func missingFields(m map[string]any, required []string) []string {
	var out []string
	for _, k := range required {
		if _, ok := m[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
