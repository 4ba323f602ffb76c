package model

// Helpers for reading decoded JSON values (map[string]any, []any, string,
// float64, bool).

// Str returns m[key] when it is a string.
func Str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// List returns v as a list. A single non-nil value becomes a one-element
// list; nil becomes nil.
func List(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

// Strings returns the string items of a list value.
func Strings(v any) []string {
	var out []string
	for _, item := range List(v) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Codings returns the codings of a decoded CodeableConcept or Coding.
func Codings(v any) []Coding {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if _, isConcept := m["coding"]; !isConcept {
		if c, ok := CodingFromMap(m); ok && (c.System != "" || c.Code != "") {
			return []Coding{c}
		}
		return nil
	}
	var out []Coding
	for _, item := range List(m["coding"]) {
		if c, ok := CodingFromMap(item); ok {
			out = append(out, c)
		}
	}
	return out
}

// TypeName returns the JSON type name of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	default:
		return "unknown"
	}
}
