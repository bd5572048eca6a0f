// Package naming turns free-text company and product names into stable keys.
package naming

import (
	"strings"
	"unicode"
)

// UnknownEntity is the key used when an invoice carries no usable company name.
const UnknownEntity = "unknown_entity"

// EntityKey canonicalizes a company name into the identifier of its store.
// The key is also a file name, so it never contains path separators, control
// characters or surrounding whitespace. Non-string input yields UnknownEntity.
func EntityKey(raw any) string {
	s, ok := raw.(string)
	if !ok {
		return UnknownEntity
	}

	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ', r == '/', r == '\\':
			b.WriteRune('_')
		case r == '.', r == ',':
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	key := strings.TrimSpace(b.String())
	if key == "" {
		return UnknownEntity
	}
	return key
}
