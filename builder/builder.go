// Package builder assembles FHIR document bundles from templates.
//
// Every template goes through the same steps: mint identities, construct the
// entities, append them, construct the composition from references to
// entities already added, insert the composition at entry 0, then stamp the
// bundle identifier and timestamp. Broken invariants panic with a
// *DefectError; a correct template never fails.
package builder

import (
	"time"

	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/epa"
	"github.com/gofhir/epadoc/pkg/reference"
)

// Builder assembles bundles. It is safe for concurrent use when its clock
// and identity source are.
type Builder struct {
	clock    func() time.Time
	identity func() string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the source of bundle timestamps and composition dates.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithIdentitySource sets the generator of entity identities.
func WithIdentitySource(next func() string) Option {
	return func(b *Builder) {
		if next != nil {
			b.identity = next
		}
	}
}

// New creates a Builder using the wall clock and random UUIDs.
func New(opts ...Option) *Builder {
	b := &Builder{clock: time.Now, identity: reference.NewIdentity}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles a bundle from t. Extra profile URLs are appended to the
// bundle's meta.profile.
func (b *Builder) Build(t Template, profiles ...string) *model.Bundle {
	checkTemplate(t)

	now := b.clock().UTC()
	reg := reference.NewRegistry(b.identity)
	links := Links{template: t.Name, byRole: make(map[string]model.Reference), now: now.Format(time.RFC3339)}

	// Mint every identity before any entity is constructed.
	ids := make([]string, len(t.Entities))
	for i, spec := range t.Entities {
		id, ref := reg.Mint(spec.Kind)
		ids[i] = id
		links.byRole[spec.Role] = ref
	}
	var compID string
	var compRef model.Reference
	if t.Composition != nil {
		compID, compRef = reg.Mint("Composition")
	}

	bundle := &model.Bundle{Type: model.BundleTypeCollection}
	for i, spec := range t.Entities {
		e := model.NewEntity(spec.Kind, ids[i])
		e.Profiles = append(e.Profiles, spec.Profiles...)
		e.Security = append(e.Security, spec.Security...)
		if spec.Fill != nil {
			spec.Fill(e, links)
		}
		bundle.Entries = append(bundle.Entries, model.Entry{FullURL: links.byRole[spec.Role].URN(), Resource: e})
	}

	if t.Composition != nil {
		comp := b.composition(t.Name, *t.Composition, compID, bundle, links)
		bundle.Entries = append([]model.Entry{{FullURL: compRef.URN(), Resource: comp}}, bundle.Entries...)
		bundle.Type = model.BundleTypeDocument
	}

	bundle.Profiles = appendUnique(append([]string(nil), t.Profiles...), profiles...)
	bundle.Security = append(bundle.Security, t.Security...)
	bundle.Identifier = &model.Identifier{System: epa.NamingRFC3986, Value: reference.URNOf(b.identity())}
	bundle.Timestamp = now

	verify(t, bundle, reg)
	return bundle
}

// composition builds the composition. Every section reference must name an
// entity already present in bundle.
func (b *Builder) composition(name string, spec CompositionSpec, id string, bundle *model.Bundle, links Links) *model.Entity {
	resolve := func(role string) model.Reference {
		ref := links.Ref(role)
		if bundle.IndexOf(ref.URN()) < 0 {
			defect(DefectDanglingReference, name, "role %q is not in the bundle", role)
		}
		return ref
	}

	comp := model.NewEntity("Composition", id)
	comp.Profiles = append(comp.Profiles, spec.Profiles...)
	comp.Set("status", spec.Status).
		Set("type", spec.Type).
		Set("date", links.Now()).
		Set("title", spec.Title)

	if spec.Subject != "" {
		comp.Set("subject", resolve(spec.Subject))
	}
	authors := make([]model.Reference, 0, len(spec.Authors))
	for _, role := range spec.Authors {
		authors = append(authors, resolve(role))
	}
	comp.Set("author", authors)
	if spec.Custodian != "" {
		comp.Set("custodian", resolve(spec.Custodian))
	}

	sections := make([]model.Section, 0, len(spec.Sections))
	for _, s := range spec.Sections {
		if len(s.Entries) == 0 {
			defect(DefectEmptySection, name, "section %q has no entries", s.Title)
		}
		section := model.Section{Title: s.Title, Code: s.Code}
		for _, role := range s.Entries {
			section.Entries = append(section.Entries, resolve(role))
		}
		sections = append(sections, section)
	}
	if len(sections) > 0 {
		comp.Set("section", sections)
	}
	return comp
}

// checkTemplate rejects templates that cannot produce a valid bundle.
func checkTemplate(t Template) {
	roles := make(map[string]bool, len(t.Entities))
	for _, spec := range t.Entities {
		if spec.Role == "" || spec.Kind == "" {
			defect(DefectMissingField, t.Name, "entity needs a role and a kind: %+v", spec)
		}
		if roles[spec.Role] {
			defect(DefectDuplicateRole, t.Name, "role %q appears twice", spec.Role)
		}
		roles[spec.Role] = true
	}

	c := t.Composition
	if c == nil {
		return
	}
	switch {
	case c.Status == "":
		defect(DefectMissingField, t.Name, "composition status")
	case c.Title == "":
		defect(DefectMissingField, t.Name, "composition title")
	case len(c.Type.Coding) == 0:
		defect(DefectMissingField, t.Name, "composition type")
	case len(c.Authors) == 0:
		defect(DefectMissingField, t.Name, "composition author")
	}
}

// verify asserts the invariants of the finished bundle.
func verify(t Template, bundle *model.Bundle, reg *reference.Registry) {
	if len(bundle.Entries) != reg.Len() {
		defect(DefectIdentityMismatch, t.Name, "%d entries for %d minted identities", len(bundle.Entries), reg.Len())
	}
	placed := make(map[string]bool, len(bundle.Entries))
	for i, e := range bundle.Entries {
		kind, ok := reg.Resolve(model.Reference(e.FullURL))
		if !ok || kind != e.Resource.Kind {
			defect(DefectIdentityMismatch, t.Name, "entry %d (%s %s) was not minted for that kind", i, e.Resource.Kind, e.FullURL)
		}
		placed[e.FullURL] = true
	}
	for _, urn := range reg.URNs() {
		if !placed[urn] {
			defect(DefectIdentityMismatch, t.Name, "minted identity %s was never placed", urn)
		}
	}

	if t.Composition != nil {
		if _, ok := bundle.Composition(); !ok {
			defect(DefectCompositionMisplaced, t.Name, "entry 0 is not the composition")
		}
	}
	for i, e := range bundle.Entries {
		if i > 0 && e.Resource.Kind == "Composition" {
			defect(DefectCompositionMisplaced, t.Name, "composition at entry %d", i)
		}
	}
	if dangling := bundle.Dangling(); len(dangling) > 0 {
		defect(DefectDanglingReference, t.Name, "%v", dangling)
	}
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found && item != "" {
			list = append(list, item)
		}
	}
	return list
}
