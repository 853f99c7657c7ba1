package tools

import "fmt"

// Dynamic argument keys injected by the runner into every callback.
const (
	ArgUserID = "user_id"
	ArgChatID = "chat_id"
)

// String returns args[key] as a string, or "" when absent or not a string.
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// OptionalString returns a pointer to args[key] when it is a string, nil when
// it is absent or null.
func OptionalString(args map[string]any, key string) *string {
	s, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Strings returns args[key] as a string slice. JSON arrays decode as []any.
func Strings(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is %T, want string", key, i, x)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s is %T, want array", key, raw)
}

// Objects returns args[key] as a slice of objects.
func Objects(args map[string]any, key string) ([]map[string]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, x := range v {
			m, ok := x.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is %T, want object", key, i, x)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s is %T, want array", key, raw)
}
