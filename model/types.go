package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Reference is a pointer to another entity of the same bundle, held as the
// target's URN ("urn:uuid:<id>").
type Reference string

// URN returns the referenced URN.
func (r Reference) URN() string {
	return string(r)
}

// MarshalJSON encodes the reference as {"reference": "<urn>"}.
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Reference string `json:"reference"`
	}{string(r)})
}

// UnmarshalJSON decodes {"reference": "<urn>"}.
func (r *Reference) UnmarshalJSON(data []byte) error {
	var v struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	*r = Reference(v.Reference)
	return nil
}

// Coding is a code drawn from a code system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a concept expressed by one or more codings and/or text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Concept returns a CodeableConcept holding a single coding.
func Concept(system, code, display string) CodeableConcept {
	return CodeableConcept{Coding: []Coding{{System: system, Code: code, Display: display}}}
}

// Identifier is a business identifier within a naming system.
type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Quantity is a measured amount.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// HumanName is a person's name.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Section is a named group of composition entries.
type Section struct {
	Title   string           `json:"title,omitempty"`
	Code    *CodeableConcept `json:"code,omitempty"`
	Entries []Reference      `json:"entry,omitempty"`
}
