// Package reference mints entity identities and resolves references between
// the entries of one bundle.
package reference

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/gofhir/epadoc/model"
)

// URNPrefix is the prefix of every minted reference.
const URNPrefix = "urn:uuid:"

// NewIdentity returns a random 128-bit identifier in canonical UUID form.
func NewIdentity() string {
	return uuid.NewString()
}

// URNOf formats an identifier as "urn:uuid:<id>".
func URNOf(id string) string {
	return URNPrefix + id
}

// IDOf returns the identifier of a "urn:uuid:" URN.
func IDOf(urn string) (string, bool) {
	id, ok := strings.CutPrefix(urn, URNPrefix)
	return id, ok && id != ""
}

// Registry records the identities minted during one bundle assembly.
// It is not safe for concurrent use; an assembly runs on one goroutine.
type Registry struct {
	next  func() string
	kinds map[string]string // urn -> resource kind
	order []string
}

// NewRegistry creates a Registry. A nil source selects NewIdentity.
func NewRegistry(source func() string) *Registry {
	if source == nil {
		source = NewIdentity
	}
	return &Registry{next: source, kinds: make(map[string]string)}
}

// Mint generates a fresh identity for an entity of the given kind and
// returns the identity and the reference to it. A source that repeats an
// identity is a programming error and panics.
func (r *Registry) Mint(kind string) (string, model.Reference) {
	id := r.next()
	urn := URNOf(id)
	if _, dup := r.kinds[urn]; dup {
		panic(fmt.Sprintf("reference: identity %s minted twice", id))
	}
	r.kinds[urn] = kind
	r.order = append(r.order, urn)
	return id, model.Reference(urn)
}

// Resolve returns the kind of the entity ref points at.
func (r *Registry) Resolve(ref model.Reference) (string, bool) {
	kind, ok := r.kinds[ref.URN()]
	return kind, ok
}

// Len returns the number of minted identities.
func (r *Registry) Len() int {
	return len(r.order)
}

// URNs returns the minted URNs in minting order.
func (r *Registry) URNs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Index maps the entry fullUrls of a decoded Bundle to resource kinds.
type Index struct {
	FullURLs   map[string]string
	Duplicates []string
}

// NewIndex indexes the entries of a decoded Bundle.
func NewIndex(bundle map[string]any) *Index {
	idx := &Index{FullURLs: make(map[string]string)}
	for _, item := range model.List(bundle["entry"]) {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fullURL := model.Str(entry, "fullUrl")
		if fullURL == "" {
			continue
		}
		resource, _ := entry["resource"].(map[string]any)
		if _, dup := idx.FullURLs[fullURL]; dup {
			idx.Duplicates = append(idx.Duplicates, fullURL)
			continue
		}
		idx.FullURLs[fullURL] = model.Str(resource, "resourceType")
	}
	return idx
}

// Resolve returns the kind of the entry a reference points at. Relative
// references ("Patient/123") match an absolute fullUrl ending in the same
// type and id.
func (idx *Index) Resolve(ref string) (string, bool) {
	if kind, ok := idx.FullURLs[ref]; ok {
		return kind, true
	}
	if Classify(ref) != FormRelative {
		return "", false
	}
	suffix := "/" + strings.Split(ref, "/_history/")[0]
	for fullURL, kind := range idx.FullURLs {
		if strings.HasSuffix(fullURL, suffix) {
			return kind, true
		}
	}
	return "", false
}

// Form is the syntactic form of a reference string.
type Form int

// Reference forms.
const (
	FormInvalid Form = iota
	FormRelative
	FormAbsolute
	FormFragment
	FormUUID
	FormOID
)

var (
	// ResourceType/id or ResourceType/id/_history/vid.
	relativeRefPattern = regexp.MustCompile(`^[A-Za-z]+/[A-Za-z0-9\-.]+(?:/_history/[A-Za-z0-9\-.]+)?$`)
	absoluteRefPattern = regexp.MustCompile(`^https?://\S+/[A-Za-z]+/[A-Za-z0-9\-.]+(?:/_history/[A-Za-z0-9\-.]+)?$`)
	fragmentRefPattern = regexp.MustCompile(`^#[A-Za-z0-9\-.]+$`)
	urnUUIDPattern     = regexp.MustCompile(`^urn:uuid:[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	urnOIDPattern      = regexp.MustCompile(`^urn:oid:[012](\.[1-9]\d*)+$`)
)

// Classify returns the form of a reference string.
func Classify(ref string) Form {
	switch {
	case urnUUIDPattern.MatchString(ref):
		return FormUUID
	case urnOIDPattern.MatchString(ref):
		return FormOID
	case fragmentRefPattern.MatchString(ref):
		return FormFragment
	case relativeRefPattern.MatchString(ref):
		return FormRelative
	case absoluteRefPattern.MatchString(ref):
		return FormAbsolute
	default:
		return FormInvalid
	}
}

// IDFromURL extracts the resource id from an absolute fullUrl, e.g.
// "http://example.org/fhir/Patient/123/_history/1" -> "123".
func IDFromURL(fullURL string) string {
	if i := strings.Index(fullURL, "/_history/"); i != -1 {
		fullURL = fullURL[:i]
	}
	lastSlash := strings.LastIndex(fullURL, "/")
	if lastSlash == -1 || lastSlash == len(fullURL)-1 {
		return ""
	}
	return fullURL[lastSlash+1:]
}
