package observability

import "unicode"

// Request-derived log fields pass through here before reaching any sink, so a
// crafted path or header cannot inject line breaks or unbounded text into logs.

func clip(value string, limit int) string {
	runes := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		runes = append(runes, r)
		if len(runes) == limit {
			break
		}
	}
	return string(runes)
}

// SanitizeRoute bounds a matched route pattern for log and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clip(route, 180)
}

// SanitizeMethod bounds an HTTP method name.
func SanitizeMethod(method string) string {
	return clip(method, 10)
}

// SanitizeOwnerKey bounds a cart-owner key before it is logged. Keys are the
// user_/sess_ prefixed identifiers, never free text.
func SanitizeOwnerKey(key string) string {
	if key == "" {
		return ""
	}
	return clip(key, 64)
}
