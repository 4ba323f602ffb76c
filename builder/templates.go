package builder

import (
	"sort"

	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/epa"
)

var confidentialityNormal = model.Coding{
	System:  epa.SystemConfidentiality,
	Code:    "N",
	Display: "normal",
}

func fillPatient(e *model.Entity, _ Links) {
	e.Set("name", []model.HumanName{{Family: "Mustermann", Given: []string{"Max"}}})
}

func fillInsuredPatient(e *model.Entity, links Links) {
	fillPatient(e, links)
	e.Set("identifier", []model.Identifier{{System: epa.NamingKVID10, Value: "X123456789"}})
}

func fillOrganization(e *model.Entity, _ Links) {
	e.Set("name", "Praxis Musterarzt")
}

// PlainDocument is a simple clinical document: one body temperature
// observation about the patient, authored by a practice.
var PlainDocument = Template{
	Name: "plain",
	Entities: []EntitySpec{
		{Role: "patient", Kind: "Patient", Fill: fillPatient},
		{Role: "organization", Kind: "Organization", Fill: fillOrganization},
		{Role: "observation", Kind: "Observation", Fill: func(e *model.Entity, links Links) {
			e.Set("status", "final").
				Set("code", model.Concept(epa.SystemLOINC, "8310-5", "Body temperature")).
				Set("subject", links.Ref("patient")).
				Set("valueQuantity", model.Quantity{Value: 36.6, Unit: "°C", System: epa.SystemUCUM, Code: "Cel"})
		}},
	},
	Composition: &CompositionSpec{
		Status:    "final",
		Title:     "Simple Clinical Document",
		Type:      model.Concept(epa.SystemLOINC, "34133-9", "Summarization of Episode Note"),
		Subject:   "patient",
		Authors:   []string{"organization"},
		Custodian: "organization",
		Sections: []SectionSpec{
			{Title: "Observations", Entries: []string{"observation"}},
		},
	},
}

var medicationSectionCode = model.Concept(epa.SystemLOINC, "10160-0", "History of Medication use")

// MedicationDocument is an ePA medication summary: one medication statement
// about the patient, tagged with the ePA profiles and normal confidentiality.
var MedicationDocument = Template{
	Name:     "medication",
	Profiles: []string{epa.MedicationBundle},
	Security: []model.Coding{confidentialityNormal},
	Entities: []EntitySpec{
		{Role: "patient", Kind: "Patient", Fill: fillInsuredPatient},
		{Role: "organization", Kind: "Organization", Fill: fillOrganization},
		{Role: "medication", Kind: "Medication", Fill: func(e *model.Entity, _ Links) {
			e.Set("identifier", []model.Identifier{{System: epa.NamingPZN, Value: "12345678"}}).
				Set("code", model.Concept(epa.SystemPZN, "12345678", "Ibuprofen 400mg"))
		}},
		{
			Role:     "statement",
			Kind:     "MedicationStatement",
			Profiles: []string{epa.MedicationStatement},
			Security: []model.Coding{confidentialityNormal},
			Fill: func(e *model.Entity, links Links) {
				e.Set("category", model.Concept(epa.SystemMedicationStatementCategory, "community", "Community")).
					Set("status", "active").
					Set("subject", links.Ref("patient")).
					Set("medicationReference", links.Ref("medication")).
					Set("dateAsserted", links.Now()).
					Set("dosage", []map[string]any{{"text": "1-0-1"}})
			},
		},
	},
	Composition: &CompositionSpec{
		Status:    "final",
		Title:     "Medication Document",
		Type:      model.Concept(epa.SystemLOINC, "56445-0", "Medication summary Document"),
		Subject:   "patient",
		Authors:   []string{"organization"},
		Custodian: "organization",
		Sections: []SectionSpec{
			{Title: "Medications", Code: &medicationSectionCode, Entries: []string{"statement"}},
		},
	},
}

var templates = map[string]Template{
	PlainDocument.Name:      PlainDocument,
	MedicationDocument.Name: MedicationDocument,
}

// Lookup returns the built-in template with the given name.
func Lookup(name string) (Template, bool) {
	t, ok := templates[name]
	return t, ok
}

// Names returns the names of the built-in templates.
func Names() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SamplePatient returns a standalone patient.
func (b *Builder) SamplePatient() *model.Entity {
	e := model.NewEntity("Patient", b.identity())
	fillPatient(e, Links{})
	return e
}
