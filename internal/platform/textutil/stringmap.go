package textutil

import "strings"

// NormalizeStringMap returns a copy of values with surrounding whitespace
// trimmed from keys and values. Entries whose trimmed key is empty are
// dropped, and an input with no surviving entries normalises to nil so
// callers can hand the result to the payment gateway as-is.
func NormalizeStringMap(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
