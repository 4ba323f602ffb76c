package fixedpattern

import (
	"reflect"
)

// Equal reports whether a decoded JSON value equals a fixed[x] value exactly.
func Equal(actual, fixed any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(fixed))
}

// Matches reports whether a decoded JSON value satisfies a pattern[x] value:
//   - primitives must be equal
//   - objects must carry every pattern property with a matching value
//   - arrays must contain a match for every pattern item, in any order
func Matches(actual, pattern any) bool {
	if pattern == nil {
		return true
	}
	if actual == nil {
		return false
	}
	return match(normalize(actual), normalize(pattern))
}

func match(actual, pattern any) bool {
	switch p := pattern.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, pval := range p {
			aval, exists := a[key]
			if !exists || !match(aval, pval) {
				return false
			}
		}
		return true

	case []any:
		a, ok := actual.([]any)
		if !ok {
			return false
		}
		for _, pitem := range p {
			found := false
			for _, aitem := range a {
				if match(aitem, pitem) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true

	default:
		return reflect.DeepEqual(actual, pattern)
	}
}

// normalize converts Go numbers to float64 so that values built in memory
// compare equal to values decoded from JSON.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
