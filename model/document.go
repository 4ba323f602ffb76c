package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

// Document is a parsed input document. Raw holds the bytes the document was
// parsed from; checkers read Tree and key cached results on Raw.
type Document struct {
	Root *Entity
	Tree map[string]any
	Raw  []byte

	once        sync.Once
	fingerprint string
}

// Parse decodes a JSON document. The top-level value must be an object; a
// missing resourceType is left to the checkers.
func Parse(data []byte) (*Document, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	tree, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: found %s", ErrNotObject, TypeName(v))
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Document{Root: EntityFromMap(tree), Tree: tree, Raw: raw}, nil
}

// FromEntity encodes e and parses the result.
func FromEntity(e *Entity) (*Document, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind, err)
	}
	return Parse(data)
}

// FromBundle encodes b and parses the result.
func FromBundle(b *Bundle) (*Document, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return Parse(data)
}

// Kind returns the root resource type, or "" when absent.
func (d *Document) Kind() string {
	return d.Root.Kind
}

// Fingerprint returns the hex sha256 of Raw.
func (d *Document) Fingerprint() string {
	d.once.Do(func() {
		sum := sha256.Sum256(d.Raw)
		d.fingerprint = hex.EncodeToString(sum[:])
	})
	return d.fingerprint
}

// Resource is one resource found in a document.
type Resource struct {
	Data      map[string]any
	Kind      string
	Path      string // e.g. "Bundle.entry[0].resource"
	Profiles  []string
	FullURL   string // bundle entries only
	Entry     int    // bundle entry index, -1 otherwise
	Contained bool
}

// Resources returns the root resource followed by its contained resources and,
// for a Bundle, every entry resource and the resources they contain.
func (d *Document) Resources() []Resource {
	var out []Resource
	root := newResource(d.Tree, d.Kind())
	out = append(out, root)
	out = appendContained(out, root)

	if d.Kind() != "Bundle" {
		return out
	}
	for i, item := range List(d.Tree["entry"]) {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		data, ok := entry["resource"].(map[string]any)
		if !ok {
			continue
		}
		r := newResource(data, root.Path+".entry["+strconv.Itoa(i)+"].resource")
		r.FullURL = Str(entry, "fullUrl")
		r.Entry = i
		out = append(out, r)
		out = appendContained(out, r)
	}
	return out
}

func newResource(data map[string]any, path string) Resource {
	meta, _ := data["meta"].(map[string]any)
	return Resource{
		Data:     data,
		Kind:     Str(data, "resourceType"),
		Path:     path,
		Profiles: Strings(meta["profile"]),
		Entry:    -1,
	}
}

func appendContained(out []Resource, parent Resource) []Resource {
	for i, item := range List(parent.Data["contained"]) {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := newResource(data, parent.Path+".contained["+strconv.Itoa(i)+"]")
		r.Contained = true
		r.Entry = parent.Entry
		out = append(out, r)
	}
	return out
}
