package builder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/epa"
)

var fixedTime = time.Date(2024, 5, 2, 8, 15, 0, 0, time.UTC)

func deterministic() *Builder {
	n := 0
	return New(
		WithClock(func() time.Time { return fixedTime }),
		WithIdentitySource(func() string {
			n++
			return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
		}),
	)
}

func TestBuild_Invariants(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			tmpl, _ := Lookup(name)
			b := New().Build(tmpl)

			comp, ok := b.Composition()
			if !ok {
				t.Fatalf("entry 0 = %s; want Composition", b.Entries[0].Resource.Kind)
			}
			if comp.ID == "" {
				t.Error("composition has no id")
			}
			if d := b.Dangling(); len(d) != 0 {
				t.Errorf("Dangling() = %v; want none", d)
			}
			if b.Type != model.BundleTypeDocument {
				t.Errorf("Type = %q; want document", b.Type)
			}
			if b.Identifier == nil || b.Identifier.System != epa.NamingRFC3986 ||
				!strings.HasPrefix(b.Identifier.Value, "urn:uuid:") {
				t.Errorf("Identifier = %+v; want urn:uuid in %s", b.Identifier, epa.NamingRFC3986)
			}
			if b.Timestamp.IsZero() {
				t.Error("Timestamp not stamped")
			}
			if len(b.Entries) != len(tmpl.Entities)+1 {
				t.Errorf("len(Entries) = %d; want %d", len(b.Entries), len(tmpl.Entities)+1)
			}

			seen := make(map[string]bool)
			for _, e := range b.Entries {
				if seen[e.FullURL] {
					t.Errorf("fullUrl %s repeated", e.FullURL)
				}
				seen[e.FullURL] = true
				if e.FullURL != "urn:uuid:"+e.Resource.ID {
					t.Errorf("fullUrl %s does not match id %s", e.FullURL, e.Resource.ID)
				}
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := deterministic().Build(PlainDocument)

	want := []string{
		"urn:uuid:00000000-0000-4000-8000-000000000004", // composition minted last
		"urn:uuid:00000000-0000-4000-8000-000000000001",
		"urn:uuid:00000000-0000-4000-8000-000000000002",
		"urn:uuid:00000000-0000-4000-8000-000000000003",
	}
	for i, w := range want {
		if b.Entries[i].FullURL != w {
			t.Errorf("Entries[%d].FullURL = %s; want %s", i, b.Entries[i].FullURL, w)
		}
	}
	if b.Identifier.Value != "urn:uuid:00000000-0000-4000-8000-000000000005" {
		t.Errorf("Identifier.Value = %s", b.Identifier.Value)
	}
	if !b.Timestamp.Equal(fixedTime) {
		t.Errorf("Timestamp = %v; want %v", b.Timestamp, fixedTime)
	}

	comp, _ := b.Composition()
	if date, _ := comp.Get("date"); date != "2024-05-02T08:15:00Z" {
		t.Errorf("composition date = %v; want 2024-05-02T08:15:00Z", date)
	}
	sections, _ := comp.Get("section")
	s := sections.([]model.Section)
	if len(s) != 1 || s[0].Title != "Observations" || s[0].Entries[0] != model.Reference(want[3]) {
		t.Errorf("sections = %+v; want Observations -> observation", s)
	}
}

func TestBuild_MedicationDocument(t *testing.T) {
	b := deterministic().Build(MedicationDocument, "https://example.org/extra", epa.MedicationBundle)

	if len(b.Profiles) != 2 || b.Profiles[0] != epa.MedicationBundle || b.Profiles[1] != "https://example.org/extra" {
		t.Errorf("Profiles = %v; want bundle profile then extra, without duplicates", b.Profiles)
	}
	if len(b.Security) != 1 || b.Security[0].Code != "N" {
		t.Errorf("Security = %v; want confidentiality N", b.Security)
	}

	var statement *model.Entity
	for _, e := range b.Entries {
		if e.Resource.Kind == "MedicationStatement" {
			statement = e.Resource
		}
	}
	if statement == nil {
		t.Fatal("no MedicationStatement entry")
	}
	if len(statement.Profiles) != 1 || statement.Profiles[0] != epa.MedicationStatement {
		t.Errorf("statement Profiles = %v", statement.Profiles)
	}
	med, _ := statement.Get("medicationReference")
	if _, ok := b.Find(med.(model.Reference).URN()); !ok {
		t.Errorf("medicationReference %v does not resolve", med)
	}

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"dosage":[{"text":"1-0-1"}]`, `"value":"X123456789"`, `"code":"10160-0"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("bundle JSON missing %s", want)
		}
	}
}

func TestBuild_TemplatesNotShared(t *testing.T) {
	b := New()
	first := b.Build(MedicationDocument, "https://example.org/a")
	second := b.Build(MedicationDocument)

	if len(second.Profiles) != 1 {
		t.Errorf("second Profiles = %v; extra tags leaked between builds", second.Profiles)
	}
	if first.Entries[0].FullURL == second.Entries[0].FullURL {
		t.Error("two builds share a composition identity")
	}
}

func TestBuild_WithoutComposition(t *testing.T) {
	tmpl := Template{
		Name:     "collection",
		Entities: []EntitySpec{{Role: "patient", Kind: "Patient", Fill: fillPatient}},
	}
	b := New().Build(tmpl)
	if b.Type != model.BundleTypeCollection {
		t.Errorf("Type = %q; want collection", b.Type)
	}
	if _, ok := b.Composition(); ok {
		t.Error("Composition() should be absent")
	}
}

func expectDefect(t *testing.T, want DefectKind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected a %s defect, got none", want)
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value = %v; want *DefectError", r)
		}
		var defect *DefectError
		if !errors.As(err, &defect) || defect.Kind != want {
			t.Fatalf("panic = %v; want %s", r, want)
		}
	}()
	fn()
}

func TestBuild_Defects(t *testing.T) {
	base := func() Template {
		return Template{
			Name: "test",
			Entities: []EntitySpec{
				{Role: "patient", Kind: "Patient"},
				{Role: "org", Kind: "Organization"},
			},
			Composition: &CompositionSpec{
				Status:   "final",
				Title:    "T",
				Type:     model.Concept(epa.SystemLOINC, "34133-9", ""),
				Subject:  "patient",
				Authors:  []string{"org"},
				Sections: []SectionSpec{{Title: "S", Entries: []string{"patient"}}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Template)
		want   DefectKind
	}{
		{"empty section", func(t *Template) { t.Composition.Sections[0].Entries = nil }, DefectEmptySection},
		{"section dangling", func(t *Template) { t.Composition.Sections[0].Entries = []string{"nobody"} }, DefectDanglingReference},
		{"author dangling", func(t *Template) { t.Composition.Authors = []string{"nobody"} }, DefectDanglingReference},
		{"fill dangling", func(t *Template) {
			t.Entities[0].Fill = func(e *model.Entity, l Links) { e.Set("link", l.Ref("nobody")) }
		}, DefectDanglingReference},
		{"fill raw reference", func(t *Template) {
			t.Entities[0].Fill = func(e *model.Entity, _ Links) { e.Set("link", model.Reference("urn:uuid:elsewhere")) }
		}, DefectDanglingReference},
		{"missing status", func(t *Template) { t.Composition.Status = "" }, DefectMissingField},
		{"missing author", func(t *Template) { t.Composition.Authors = nil }, DefectMissingField},
		{"missing kind", func(t *Template) { t.Entities[1].Kind = "" }, DefectMissingField},
		{"duplicate role", func(t *Template) { t.Entities[1].Role = "patient" }, DefectDuplicateRole},
		{"fill changes kind", func(t *Template) {
			t.Entities[1].Fill = func(e *model.Entity, _ Links) { e.Kind = "Practitioner" }
		}, DefectIdentityMismatch},
		{"second composition", func(t *Template) {
			t.Entities = append(t.Entities, EntitySpec{Role: "c2", Kind: "Composition"})
		}, DefectCompositionMisplaced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := base()
			tt.mutate(&tmpl)
			expectDefect(t, tt.want, func() { New().Build(tmpl) })
		})
	}

	t.Run("valid base", func(t *testing.T) {
		New().Build(base())
	})
}

func TestBuild_Concurrent(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	urns := make([]string, 50)
	for i := range urns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			urns[i] = b.Build(PlainDocument).Entries[0].FullURL
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, u := range urns {
		if seen[u] {
			t.Fatalf("composition identity %s repeated across builds", u)
		}
		seen[u] = true
	}
}

func TestSamplePatient(t *testing.T) {
	p := deterministic().SamplePatient()
	if p.Kind != "Patient" || p.ID == "" {
		t.Errorf("SamplePatient() = %s/%s", p.Kind, p.ID)
	}
	names, _ := p.Get("name")
	if n := names.([]model.HumanName); n[0].Family != "Mustermann" {
		t.Errorf("family = %q; want Mustermann", n[0].Family)
	}
}

func TestDefectError(t *testing.T) {
	err := &DefectError{Kind: DefectEmptySection, Template: "plain", Detail: `section "x" has no entries`}
	want := `builder: plain: empty section: section "x" has no entries`
	if err.Error() != want {
		t.Errorf("Error() = %q; want %q", err.Error(), want)
	}
}
