// Package profile checks resources against the StructureDefinitions of a
// profile package.
//
// Only what a rule package adds on top of the base resource is checked:
// cardinality of non-sliced elements, fixed[x] and pattern[x] values,
// required and extensible bindings, and the FHIRPath invariants declared on
// the resource root. Extensions are always allowed.
package profile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/epadoc/pkg/fixedpattern"
)

// StructureDefinition is the part of a StructureDefinition the checker uses.
// It is decoded from raw JSON so that fixed[x] and pattern[x] values of any
// type survive.
type StructureDefinition struct {
	URL            string
	Version        string
	Name           string
	Type           string
	Kind           string
	BaseDefinition string
	Elements       []*Element

	children map[string][]*Element // parent path -> non-sliced children
	root     *Element
}

// Element is one element definition.
type Element struct {
	ID          string
	Path        string
	SliceName   string
	Min         int
	Max         string // "*" or a number
	Types       []string
	Binding     *Binding
	Constraints []Constraint
	Fixed       *fixedpattern.Constraint
	Pattern     *fixedpattern.Constraint
}

// Binding is a terminology binding.
type Binding struct {
	Strength string
	ValueSet string
}

// Constraint is a FHIRPath invariant.
type Constraint struct {
	Key        string `json:"key"`
	Severity   string `json:"severity"`
	Human      string `json:"human"`
	Expression string `json:"expression"`
}

// Name returns the last path segment ("medication[x]").
func (e *Element) Name() string {
	return e.Path[strings.LastIndex(e.Path, ".")+1:]
}

// IsChoice reports whether the element is a choice ("value[x]").
func (e *Element) IsChoice() bool {
	return strings.HasSuffix(e.Path, "[x]")
}

// MaxCount returns the maximum cardinality, or -1 when unbounded.
func (e *Element) MaxCount() int {
	if e.Max == "" || e.Max == "*" {
		return -1
	}
	n, err := strconv.Atoi(e.Max)
	if err != nil {
		return -1
	}
	return n
}

func (e *Element) sliced() bool {
	return e.SliceName != "" || strings.Contains(e.ID, ":")
}

type rawDefinition struct {
	ResourceType   string `json:"resourceType"`
	URL            string `json:"url"`
	Version        string `json:"version"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Kind           string `json:"kind"`
	BaseDefinition string `json:"baseDefinition"`
	Snapshot       *struct {
		Element []json.RawMessage `json:"element"`
	} `json:"snapshot"`
	Differential *struct {
		Element []json.RawMessage `json:"element"`
	} `json:"differential"`
}

type rawElement struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	SliceName string `json:"sliceName"`
	Min       int    `json:"min"`
	Max       string `json:"max"`
	Type      []struct {
		Code string `json:"code"`
	} `json:"type"`
	Binding *struct {
		Strength string `json:"strength"`
		ValueSet string `json:"valueSet"`
	} `json:"binding"`
	Constraint []Constraint `json:"constraint"`
}

// Parse decodes a StructureDefinition. The snapshot is used when present,
// the differential otherwise.
func Parse(data []byte) (*StructureDefinition, error) {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse StructureDefinition: %w", err)
	}
	if raw.ResourceType != "" && raw.ResourceType != "StructureDefinition" {
		return nil, fmt.Errorf("expected a StructureDefinition, found %s", raw.ResourceType)
	}
	if raw.URL == "" || raw.Type == "" {
		return nil, fmt.Errorf("StructureDefinition has no url or type")
	}

	var elements []json.RawMessage
	switch {
	case raw.Snapshot != nil:
		elements = raw.Snapshot.Element
	case raw.Differential != nil:
		elements = raw.Differential.Element
	}

	sd := &StructureDefinition{
		URL:            raw.URL,
		Version:        raw.Version,
		Name:           raw.Name,
		Type:           raw.Type,
		Kind:           raw.Kind,
		BaseDefinition: raw.BaseDefinition,
		children:       make(map[string][]*Element),
	}
	for i, data := range elements {
		e, err := parseElement(data)
		if err != nil {
			return nil, fmt.Errorf("%s: element %d: %w", raw.URL, i, err)
		}
		sd.add(e)
	}
	return sd, nil
}

func parseElement(data []byte) (*Element, error) {
	var raw rawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Path == "" {
		return nil, fmt.Errorf("element has no path")
	}
	var props map[string]json.RawMessage
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}

	e := &Element{
		ID:          raw.ID,
		Path:        raw.Path,
		SliceName:   raw.SliceName,
		Min:         raw.Min,
		Max:         raw.Max,
		Constraints: raw.Constraint,
	}
	for _, t := range raw.Type {
		e.Types = append(e.Types, t.Code)
	}
	if raw.Binding != nil && raw.Binding.ValueSet != "" {
		e.Binding = &Binding{Strength: raw.Binding.Strength, ValueSet: raw.Binding.ValueSet}
	}
	e.Fixed, e.Pattern = fixedpattern.Extract(props)
	return e, nil
}

func (sd *StructureDefinition) add(e *Element) {
	sd.Elements = append(sd.Elements, e)
	if e.Path == sd.Type {
		if sd.root == nil {
			sd.root = e
		}
		return
	}
	if e.sliced() {
		return
	}
	i := strings.LastIndex(e.Path, ".")
	if i < 0 {
		return
	}
	parent := e.Path[:i]
	sd.children[parent] = append(sd.children[parent], e)
}

// Children returns the non-sliced elements directly below path.
func (sd *StructureDefinition) Children(path string) []*Element {
	return sd.children[path]
}

// Root returns the element definition of the resource itself.
func (sd *StructureDefinition) Root() *Element {
	return sd.root
}

// FromR4 converts a typed StructureDefinition.
func FromR4(sd *r4.StructureDefinition) (*StructureDefinition, error) {
	if sd == nil {
		return nil, fmt.Errorf("StructureDefinition is nil")
	}
	data, err := json.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("encode StructureDefinition: %w", err)
	}
	return Parse(data)
}
