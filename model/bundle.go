package model

import (
	"time"
)

// Bundle types used by this module.
const (
	BundleTypeDocument   = "document"
	BundleTypeCollection = "collection"
)

// Bundle is an ordered container of entries. For a document bundle the
// first entry is the Composition.
type Bundle struct {
	ID         string
	Type       string
	Identifier *Identifier
	Timestamp  time.Time
	Profiles   []string
	Security   []Coding
	Entries    []Entry
}

// Entry is one bundle entry.
type Entry struct {
	FullURL  string
	Resource *Entity
}

// Find returns the entry whose fullUrl is urn.
func (b *Bundle) Find(urn string) (Entry, bool) {
	if i := b.IndexOf(urn); i >= 0 {
		return b.Entries[i], true
	}
	return Entry{}, false
}

// IndexOf returns the position of the entry whose fullUrl is urn, or -1.
func (b *Bundle) IndexOf(urn string) int {
	for i, e := range b.Entries {
		if e.FullURL == urn {
			return i
		}
	}
	return -1
}

// Composition returns the first entry's resource when it is a Composition.
func (b *Bundle) Composition() (*Entity, bool) {
	if len(b.Entries) == 0 || b.Entries[0].Resource == nil || b.Entries[0].Resource.Kind != "Composition" {
		return nil, false
	}
	return b.Entries[0].Resource, true
}

// References returns every reference held by the entries, in entry order.
func (b *Bundle) References() []Reference {
	var refs []Reference
	for _, e := range b.Entries {
		if e.Resource != nil {
			refs = append(refs, e.Resource.References()...)
		}
	}
	return refs
}

// Dangling returns the references that match no entry's fullUrl.
func (b *Bundle) Dangling() []Reference {
	known := make(map[string]bool, len(b.Entries))
	for _, e := range b.Entries {
		known[e.FullURL] = true
	}
	var out []Reference
	for _, r := range b.References() {
		if !known[r.URN()] {
			out = append(out, r)
		}
	}
	return out
}

// Entity returns the bundle as a Bundle resource.
func (b *Bundle) Entity() *Entity {
	e := NewEntity("Bundle", b.ID)
	e.Profiles = b.Profiles
	e.Security = b.Security
	if b.Type != "" {
		e.Set("type", b.Type)
	}
	if b.Identifier != nil {
		e.Set("identifier", *b.Identifier)
	}
	if !b.Timestamp.IsZero() {
		e.Set("timestamp", b.Timestamp.UTC().Format(time.RFC3339))
	}
	if len(b.Entries) > 0 {
		entries := make([]map[string]any, 0, len(b.Entries))
		for _, entry := range b.Entries {
			m := map[string]any{}
			if entry.FullURL != "" {
				m["fullUrl"] = entry.FullURL
			}
			if entry.Resource != nil {
				m["resource"] = entry.Resource
			}
			entries = append(entries, m)
		}
		e.Set("entry", entries)
	}
	return e
}

// MarshalJSON encodes the bundle as a FHIR Bundle resource.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return b.Entity().MarshalJSON()
}
