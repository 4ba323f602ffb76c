// Package model holds the entity model of clinical documents: identity-bearing
// resources, references between them, coded values and document bundles, plus
// their JSON encoding.
package model

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// ErrNotObject is returned when a JSON document is not a JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// Entity is one identity-bearing resource. Kind is the FHIR resource type.
//
// Fields holds every element other than resourceType, id and meta. Values may
// be Reference, Coding, CodeableConcept, Identifier, Quantity, HumanName,
// Section (or slices of these), nested *Entity, map[string]any, []any or
// primitives.
type Entity struct {
	ID       string
	Kind     string
	Profiles []string
	Security []Coding
	Fields   map[string]any
}

// NewEntity creates an empty entity.
func NewEntity(kind, id string) *Entity {
	return &Entity{ID: id, Kind: kind, Fields: make(map[string]any)}
}

// Set stores a field and returns the entity.
func (e *Entity) Set(name string, value any) *Entity {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[name] = value
	return e
}

// Get returns a field.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Has reports whether a field is set.
func (e *Entity) Has(name string) bool {
	_, ok := e.Fields[name]
	return ok
}

// References returns every reference held by the entity, in field-name order.
func (e *Entity) References() []Reference {
	var refs []Reference
	for _, name := range e.fieldNames() {
		collectReferences(e.Fields[name], &refs)
	}
	return refs
}

func collectReferences(v any, refs *[]Reference) {
	switch x := v.(type) {
	case Reference:
		*refs = append(*refs, x)
	case []Reference:
		*refs = append(*refs, x...)
	case Section:
		*refs = append(*refs, x.Entries...)
	case []Section:
		for _, s := range x {
			*refs = append(*refs, s.Entries...)
		}
	case *Entity:
		*refs = append(*refs, x.References()...)
	case map[string]any:
		if r, ok := x["reference"].(string); ok {
			*refs = append(*refs, Reference(r))
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			if k != "reference" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectReferences(x[k], refs)
		}
	case []map[string]any:
		for _, item := range x {
			collectReferences(item, refs)
		}
	case []any:
		for _, item := range x {
			collectReferences(item, refs)
		}
	}
}

func (e *Entity) fieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type meta struct {
	Profile  []string `json:"profile,omitempty"`
	Security []Coding `json:"security,omitempty"`
}

// MarshalJSON writes resourceType, id and meta first, then the remaining
// fields in name order.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value any) error {
		name, err := json.Marshal(key)
		if err != nil {
			return fmt.Errorf("%s: key %q: %w", e.Kind, key, err)
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", e.Kind, key, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	if e.Kind != "" {
		if err := write("resourceType", e.Kind); err != nil {
			return nil, err
		}
	}
	if e.ID != "" {
		if err := write("id", e.ID); err != nil {
			return nil, err
		}
	}
	if len(e.Profiles) > 0 || len(e.Security) > 0 {
		if err := write("meta", meta{Profile: e.Profiles, Security: e.Security}); err != nil {
			return nil, err
		}
	}
	for _, name := range e.fieldNames() {
		if err := write(name, e.Fields[name]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a resource. Fields receive generic JSON values; meta
// elements other than profile and security are not retained.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ErrNotObject
	}
	*e = *EntityFromMap(m)
	return nil
}

// EntityFromMap builds an entity from a decoded JSON object. The map values
// are shared, not copied.
func EntityFromMap(m map[string]any) *Entity {
	e := &Entity{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case "resourceType":
			e.Kind, _ = v.(string)
		case "id":
			e.ID, _ = v.(string)
		case "meta":
			mm, _ := v.(map[string]any)
			e.Profiles = Strings(mm["profile"])
			for _, item := range List(mm["security"]) {
				if c, ok := CodingFromMap(item); ok {
					e.Security = append(e.Security, c)
				}
			}
		default:
			e.Fields[k] = v
		}
	}
	return e
}

// CodingFromMap converts a decoded Coding object.
func CodingFromMap(v any) (Coding, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Coding{}, false
	}
	return Coding{
		System:  Str(m, "system"),
		Version: Str(m, "version"),
		Code:    Str(m, "code"),
		Display: Str(m, "display"),
	}, true
}
