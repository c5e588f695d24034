// Package sanitize strips credentials from captured requests before they are
// stored or shown. Every function here is pure and idempotent.
package sanitize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hamed0406/busmonitor/internal/domain"
)

// Redacted replaces every secret value.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"username":     true,
	"user_name":    true,
	"user":         true,
	"password":     true,
	"passwd":       true,
	"pwd":          true,
	"key":          true,
	"consumerid":   true,
	"consumer_id":  true,
	"token":        true,
	"access_token": true,
	"accesstoken":  true,
	"secret":       true,
}

var queryCreds = regexp.MustCompile(`(?i)[?&](?:username|user_name|password|passwd|token|key)=[^&#]*`)

// Request returns a redacted copy of req. secrets are literal values (such as
// tokens obtained at runtime) scrubbed wherever they appear; empty secrets are
// ignored. The input is never modified.
func Request(req domain.RequestSnapshot, secrets ...string) domain.RequestSnapshot {
	r := newRedactor(secrets)

	out := domain.RequestSnapshot{
		URL: r.scrub(queryCreds.ReplaceAllStringFunc(req.URL, func(m string) string {
			name, _, _ := strings.Cut(m, "=")
			return name + "=" + r.mask
		})),
		Method: req.Method,
	}
	if req.Headers != nil {
		out.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			out.Headers[k] = r.scrub(r.header(k, v))
		}
	}
	if req.Params != nil {
		out.Params = make(map[string]string, len(req.Params))
		for k, v := range req.Params {
			if sensitiveKeys[strings.ToLower(k)] {
				v = r.mask
			}
			out.Params[k] = r.scrub(v)
		}
	}
	out.Body = r.value(req.Body)
	return out
}

// Text scrubs literal secrets from free text such as a stored response.
func Text(s string, secrets ...string) string {
	return newRedactor(secrets).scrub(s)
}

// redactor replaces secrets in a single left-to-right pass. mask never shares
// text with a secret, so no secret survives and a second pass is a no-op.
type redactor struct {
	mask     string
	replacer *strings.Replacer
}

func newRedactor(secrets []string) *redactor {
	lit := literals(secrets)
	r := &redactor{mask: mask(lit)}
	if len(lit) > 0 {
		pairs := make([]string, 0, 2*len(lit))
		for _, s := range lit {
			pairs = append(pairs, s, r.mask)
		}
		r.replacer = strings.NewReplacer(pairs...)
	}
	return r
}

func (r *redactor) scrub(s string) string {
	if r.replacer == nil || s == "" {
		return s
	}
	return r.replacer.Replace(s)
}

func (r *redactor) header(name, v string) string {
	switch strings.ToLower(name) {
	case "authorization", "proxy-authorization":
		if scheme, _, ok := strings.Cut(v, " "); ok {
			return scheme + " " + r.mask
		}
		return r.mask
	case "cookie":
		parts := strings.Split(v, ";")
		for i, p := range parts {
			if name, _, ok := strings.Cut(p, "="); ok {
				parts[i] = name + "=" + r.mask
			}
		}
		return strings.Join(parts, ";")
	case "x-api-key":
		return r.mask
	}
	return v
}

// value deep-copies JSON-like bodies, redacting sensitive keys.
func (r *redactor) value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return r.scrub(t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			if sensitiveKeys[strings.ToLower(k)] && inner != nil {
				m[k] = r.mask
				continue
			}
			m[k] = r.value(inner)
		}
		return m
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, inner := range t {
			if sensitiveKeys[strings.ToLower(k)] {
				m[k] = r.mask
				continue
			}
			m[k] = r.scrub(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = r.value(inner)
		}
		return s
	default:
		return v
	}
}

// literals drops empty and duplicate secrets, then orders longest first so
// the longer of two secrets starting at the same offset wins.
func literals(secrets []string) []string {
	out := make([]string, 0, len(secrets))
	seen := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// fallbackMaskChars avoid the separators that header and query parsing split on.
const fallbackMaskChars = "*~^+!%$"

// mask returns Redacted unless a secret overlaps it, in which case it returns
// a run of a character that appears in no secret.
func mask(lit []string) string {
	clash := false
	for _, s := range lit {
		if overlaps(s, Redacted) {
			clash = true
			break
		}
	}
	if !clash {
		return Redacted
	}
	for _, c := range fallbackMaskChars {
		if !containsRune(lit, c) {
			return strings.Repeat(string(c), 8)
		}
	}
	for c := '\u2588'; ; c++ {
		if !containsRune(lit, c) {
			return strings.Repeat(string(c), 8)
		}
	}
}

// overlaps reports whether s and m share text in a way that lets s reappear
// once m is placed next to arbitrary text.
func overlaps(s, m string) bool {
	if strings.Contains(m, s) || strings.Contains(s, m) {
		return true
	}
	for k := 1; k < len(s) && k < len(m); k++ {
		if strings.HasSuffix(s, m[:k]) || strings.HasPrefix(s, m[len(m)-k:]) {
			return true
		}
	}
	return false
}

func containsRune(lit []string, c rune) bool {
	for _, s := range lit {
		if strings.ContainsRune(s, c) {
			return true
		}
	}
	return false
}
