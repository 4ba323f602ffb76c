package builder

import (
	"github.com/gofhir/epadoc/model"
)

// Template describes one kind of document. The builder mints identities for
// every entity, links them by role and places the composition first.
type Template struct {
	Name string

	// Bundle meta.
	Profiles []string
	Security []model.Coding

	// Non-composition entities in entry order.
	Entities []EntitySpec

	// Composition indexes the entities. A nil composition builds a
	// collection bundle.
	Composition *CompositionSpec
}

// EntitySpec describes one non-composition entity.
type EntitySpec struct {
	// Role names the entity within the template, e.g. "patient".
	Role     string
	Kind     string
	Profiles []string
	Security []model.Coding

	// Fill sets the entity's fields. Links resolves other roles.
	Fill func(e *model.Entity, links Links)
}

// CompositionSpec describes the composition of a document. Role fields name
// entities of the same template.
type CompositionSpec struct {
	Status    string
	Title     string
	Type      model.CodeableConcept
	Profiles  []string
	Subject   string
	Authors   []string
	Custodian string
	Sections  []SectionSpec
}

// SectionSpec describes one composition section.
type SectionSpec struct {
	Title   string
	Code    *model.CodeableConcept
	Entries []string
}

// Links resolves template roles to references during assembly.
type Links struct {
	template string
	byRole   map[string]model.Reference
	now      string
}

// Ref returns the reference to the entity playing role. An unknown role is a
// dangling reference and panics with a *DefectError.
func (l Links) Ref(role string) model.Reference {
	ref, ok := l.byRole[role]
	if !ok {
		defect(DefectDanglingReference, l.template, "no entity plays role %q", role)
	}
	return ref
}

// Now returns the assembly timestamp as a FHIR dateTime.
func (l Links) Now() string {
	return l.now
}
