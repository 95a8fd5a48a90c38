package obs

import "strings"

// Redacted replaces the value of every sensitive field.
const Redacted = "[REDACTED]"

// piiFields are the forbidden substrings matched against lowercased field
// names.
var piiFields = []string{
	"password", "api_key", "secret", "token", "access_token",
	"refresh_token", "authorization", "credit_card", "ssn",
	"email", "phone",
}

func isPIIField(name string) bool {
	lower := strings.ToLower(name)

	for _, field := range piiFields {
		if strings.Contains(lower, field) {
			return true
		}
	}

	return false
}

// Redact walks an object tree and replaces the value of any field whose name
// matches the sensitive-field list. It recurses through nested objects and
// arrays and is idempotent. The input is not modified.
func Redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, inner := range v {
			if isPIIField(key) {
				out[key] = Redacted
			} else {
				out[key] = Redact(inner)
			}
		}

		return out
	case map[string]string:
		out := make(map[string]any, len(v))

		for key, inner := range v {
			if isPIIField(key) {
				out[key] = Redacted
			} else {
				out[key] = inner
			}
		}

		return out
	case []any:
		out := make([]any, len(v))

		for i, inner := range v {
			out[i] = Redact(inner)
		}

		return out
	default:
		return value
	}
}
