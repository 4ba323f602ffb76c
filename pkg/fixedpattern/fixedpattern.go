// Package fixedpattern checks values against the fixed[x] and pattern[x]
// constraints of element definitions. Values are compared in their decoded
// JSON form, so every FHIR type is supported without per-type code.
package fixedpattern

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tells a fixed constraint from a pattern constraint.
type Kind string

const (
	KindFixed   Kind = "fixed"
	KindPattern Kind = "pattern"
)

// Constraint is one fixed[x] or pattern[x] value of an element definition.
type Constraint struct {
	Kind  Kind
	Type  string // type suffix, e.g. "Code" for fixedCode
	Value any
}

// Extract finds the fixed[x] and pattern[x] values among the properties of a
// raw element definition.
func Extract(props map[string]json.RawMessage) (fixed, pattern *Constraint) {
	for key, raw := range props {
		var kind Kind
		switch {
		case strings.HasPrefix(key, string(KindFixed)) && len(key) > len(KindFixed):
			kind = KindFixed
		case strings.HasPrefix(key, string(KindPattern)) && len(key) > len(KindPattern):
			kind = KindPattern
		default:
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		c := &Constraint{Kind: kind, Type: strings.TrimPrefix(key, string(kind)), Value: value}
		if kind == KindFixed {
			fixed = c
		} else {
			pattern = c
		}
	}
	return fixed, pattern
}

// Violation returns a message when actual does not satisfy c.
func (c *Constraint) Violation(actual any) (string, bool) {
	switch c.Kind {
	case KindFixed:
		if !Equal(actual, c.Value) {
			return fmt.Sprintf("Value must be exactly '%s' (fixed%s constraint)", Format(c.Value), c.Type), true
		}
	case KindPattern:
		if !Matches(actual, c.Value) {
			return fmt.Sprintf("Value must match pattern '%s' (pattern%s constraint)", Format(c.Value), c.Type), true
		}
	}
	return "", false
}

// Format renders a value for a message, truncated to 100 bytes.
func Format(v any) string {
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		s = string(data)
	}
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
