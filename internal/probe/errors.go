package probe

import (
	"errors"
	"strings"
)

// Failure taxonomy. Probes wrap one of these so callers can classify a
// failed check without parsing messages.
var (
	ErrAuth      = errors.New("auth error")
	ErrTransport = errors.New("transport error")
	ErrSchema    = errors.New("schema error")
	ErrParse     = errors.New("parse error")
)

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "internal"
	}
}

// KindOfMessage classifies a stored error message by its sentinel prefix.
func KindOfMessage(msg string) string {
	if msg == "" {
		return ""
	}
	for _, e := range []error{ErrAuth, ErrTransport, ErrSchema, ErrParse} {
		if strings.HasPrefix(msg, e.Error()) {
			return Kind(e)
		}
	}
	return "internal"
}
