package terminology

import (
	"context"
	"errors"
	"testing"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/epadoc/service"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	if _, err := m.LoadSeed(); err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	return m
}

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("seeded code systems and value sets", func(t *testing.T) {
		m := seeded(t)
		if m.CountCodeSystems() == 0 {
			t.Error("expected seeded code systems")
		}
		if m.CountValueSets() == 0 {
			t.Error("expected seeded value sets")
		}
	})

	t.Run("validate code in code system", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "http://hl7.org/fhir/administrative-gender", "male", "")
		if err != nil {
			t.Fatalf("ValidateCode() error = %v", err)
		}
		if !result.Valid || !result.Strict {
			t.Errorf("result = %+v; want valid and strict", result)
		}
		if result.Display != "Male" {
			t.Errorf("Display = %q; want %q", result.Display, "Male")
		}
	})

	t.Run("unknown code in complete code system", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "http://hl7.org/fhir/administrative-gender", "robot", "")
		if err != nil {
			t.Fatalf("ValidateCode() error = %v", err)
		}
		if result.Valid || !result.Strict {
			t.Errorf("result = %+v; want invalid and strict", result)
		}
	})

	t.Run("unknown code in fragment code system", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "http://fhir.de/CodeSystem/bfarm/atc", "Z99ZZ99", "")
		if err != nil {
			t.Fatalf("ValidateCode() error = %v", err)
		}
		if result.Valid || result.Strict {
			t.Errorf("result = %+v; want invalid and advisory", result)
		}
	})

	t.Run("versioned system", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "http://hl7.org/fhir/bundle-type|4.0.1", "document", "")
		if err != nil || !result.Valid {
			t.Errorf("ValidateCode() = %+v, %v; want valid", result, err)
		}
	})

	t.Run("code in value set", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "", "female", "http://hl7.org/fhir/ValueSet/administrative-gender|4.0.1")
		if err != nil {
			t.Fatalf("ValidateCode() error = %v", err)
		}
		if !result.Valid || result.System != "http://hl7.org/fhir/administrative-gender" {
			t.Errorf("result = %+v; want valid in administrative-gender", result)
		}
	})

	t.Run("code not in value set", func(t *testing.T) {
		m := seeded(t)
		result, err := m.ValidateCode(ctx, "", "invalid", "http://hl7.org/fhir/ValueSet/administrative-gender")
		if err != nil {
			t.Fatalf("ValidateCode() error = %v", err)
		}
		if result.Valid {
			t.Error("expected 'invalid' to be invalid")
		}
	})

	t.Run("explicit concepts", func(t *testing.T) {
		m := seeded(t)
		vs := "http://terminology.hl7.org/ValueSet/v3-ConfidentialityClassification"
		if r, _ := m.ValidateCode(ctx, "http://terminology.hl7.org/CodeSystem/v3-Confidentiality", "N", vs); !r.Valid {
			t.Error("expected N to be in the confidentiality classification")
		}
		if r, _ := m.ValidateCode(ctx, "http://other", "N", vs); r.Valid {
			t.Error("a code from another system should not match")
		}
	})

	t.Run("empty code", func(t *testing.T) {
		result, err := NewMemory().ValidateCode(ctx, "http://x", "", "")
		if err != nil || result.Valid {
			t.Errorf("ValidateCode() = %+v, %v; want invalid", result, err)
		}
	})

	t.Run("unknown code system and value set", func(t *testing.T) {
		m := seeded(t)
		if _, err := m.ValidateCode(ctx, "http://unknown/CodeSystem", "code", ""); !errors.Is(err, service.ErrNotFound) {
			t.Errorf("error = %v; want ErrNotFound", err)
		}
		if _, err := m.ValidateCode(ctx, "", "code", "http://unknown/ValueSet"); !errors.Is(err, service.ErrNotFound) {
			t.Errorf("error = %v; want ErrNotFound", err)
		}
		if _, err := m.ValidateCode(ctx, "", "code", ""); !errors.Is(err, service.ErrNotSupported) {
			t.Errorf("error = %v; want ErrNotSupported", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		c, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := NewMemory().ValidateCode(c, "", "", ""); err == nil {
			t.Error("expected error for cancelled context")
		}
	})

	t.Run("lookup", func(t *testing.T) {
		m := seeded(t)
		if d, ok := m.Lookup("http://hl7.org/fhir/observation-status", "final"); !ok || d != "Final" {
			t.Errorf("Lookup() = %q, %v; want Final", d, ok)
		}
		if !m.HasCodeSystem("http://hl7.org/fhir/bundle-type") {
			t.Error("HasCodeSystem(bundle-type) = false; want true")
		}
		if m.HasCodeSystem(SystemISO3166) {
			t.Error("countries are checked by the common checker, not loaded from the seed bundle")
		}
	})
}

func TestMemory_LoadR4(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	url := "http://example.org/CodeSystem/custom"
	code := "custom-code"
	display := "Custom Code"
	cs := &r4.CodeSystem{
		Url:     &url,
		Concept: []r4.CodeSystemConcept{{Code: &code, Display: &display}},
	}
	if err := m.LoadCodeSystem(cs, ""); err != nil {
		t.Fatalf("LoadCodeSystem() error = %v", err)
	}
	result, err := m.ValidateCode(ctx, url, code, "")
	if err != nil || !result.Valid || !result.Strict {
		t.Errorf("ValidateCode() = %+v, %v; want valid, strict by default", result, err)
	}

	vsURL := "http://example.org/ValueSet/composed"
	vs := &r4.ValueSet{
		Url: &vsURL,
		Compose: &r4.ValueSetCompose{
			Include: []r4.ValueSetComposeInclude{{
				System:  &url,
				Concept: []r4.ValueSetComposeIncludeConcept{{Code: &code, Display: &display}},
			}},
		},
	}
	if err := m.LoadValueSet(vs); err != nil {
		t.Fatalf("LoadValueSet() error = %v", err)
	}
	if r, err := m.ValidateCode(ctx, url, code, vsURL); err != nil || !r.Valid {
		t.Errorf("ValidateCode() = %+v, %v; want valid", r, err)
	}

	if err := m.LoadCodeSystem(nil, ""); err == nil {
		t.Error("expected error for nil CodeSystem")
	}
	if err := m.LoadValueSet(&r4.ValueSet{}); err == nil {
		t.Error("expected error for ValueSet without URL")
	}
}

func TestMemory_NestedConcepts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	url := "http://example.org/CodeSystem/hierarchical"
	parent, child := "parent", "child"
	cs := &r4.CodeSystem{
		Url: &url,
		Concept: []r4.CodeSystemConcept{{
			Code:    &parent,
			Concept: []r4.CodeSystemConcept{{Code: &child}},
		}},
	}
	if err := m.LoadCodeSystem(cs, ContentComplete); err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{parent, child} {
		if r, _ := m.ValidateCode(ctx, url, code, ""); !r.Valid {
			t.Errorf("expected %q to be valid", code)
		}
	}

	system := "http://example.org/CodeSystem/nested"
	vsURL := "http://example.org/ValueSet/nested"
	vs := &r4.ValueSet{
		Url: &vsURL,
		Expansion: &r4.ValueSetExpansion{
			Contains: []r4.ValueSetExpansionContains{{
				System:   &system,
				Code:     &parent,
				Contains: []r4.ValueSetExpansionContains{{System: &system, Code: &child}},
			}},
		},
	}
	if err := m.LoadValueSet(vs); err != nil {
		t.Fatal(err)
	}
	if r, _ := m.ValidateCode(ctx, system, child, vsURL); !r.Valid {
		t.Error("expected nested expansion code to be valid")
	}
}

const hierarchy = `{"resourceType":"Bundle","entry":[
 {"resource":{"resourceType":"CodeSystem","url":"http://example.org/cs","content":"complete","concept":[
   {"code":"root","display":"Root","concept":[
     {"code":"a","display":"A"},
     {"code":"b","display":"B","concept":[{"code":"b1","display":"B1"}]}
   ]},
   {"code":"other","display":"Other"},
   {"code":"_abstract","display":"Abstract"}
 ]}},
 {"resource":{"resourceType":"ValueSet","url":"http://example.org/vs/below-root","compose":{"include":[
   {"system":"http://example.org/cs","filter":[{"property":"concept","op":"descendent-of","value":"root"}]}]}}},
 {"resource":{"resourceType":"ValueSet","url":"http://example.org/vs/is-b","compose":{"include":[
   {"system":"http://example.org/cs","filter":[{"property":"concept","op":"is-a","value":"b"}]}]}}},
 {"resource":{"resourceType":"ValueSet","url":"http://example.org/vs/regex","compose":{"include":[
   {"system":"http://example.org/cs","filter":[{"property":"code","op":"regex","value":"[ab]"}]}]}}},
 {"resource":{"resourceType":"ValueSet","url":"http://example.org/vs/loinc","compose":{"include":[
   {"system":"http://loinc.org"}]}}}
]}`

func TestMemory_Filters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	stats, err := m.LoadJSON([]byte(hierarchy))
	if err != nil {
		t.Fatalf("LoadJSON() error = %v", err)
	}
	if stats.CodeSystemsLoaded != 1 || stats.ValueSetsLoaded != 4 {
		t.Fatalf("stats = %+v; want 1 code system, 4 value sets", stats)
	}

	tests := []struct {
		vs    string
		code  string
		valid bool
	}{
		{"http://example.org/vs/below-root", "a", true},
		{"http://example.org/vs/below-root", "b1", true},
		{"http://example.org/vs/below-root", "root", false},
		{"http://example.org/vs/below-root", "other", false},
		{"http://example.org/vs/is-b", "b", true},
		{"http://example.org/vs/is-b", "b1", true},
		{"http://example.org/vs/is-b", "a", false},
		{"http://example.org/vs/regex", "a", true},
		{"http://example.org/vs/regex", "b1", false},
	}
	for _, tt := range tests {
		t.Run(tt.vs+"#"+tt.code, func(t *testing.T) {
			r, err := m.ValidateCode(ctx, "http://example.org/cs", tt.code, tt.vs)
			if err != nil {
				t.Fatalf("ValidateCode() error = %v", err)
			}
			if r.Valid != tt.valid {
				t.Errorf("Valid = %v; want %v", r.Valid, tt.valid)
			}
		})
	}

	// An include over a code system that is not loaded cannot reject codes.
	if _, err := m.ValidateCode(ctx, "http://loinc.org", "8310-5", "http://example.org/vs/loinc"); !errors.Is(err, service.ErrNotSupported) {
		t.Errorf("error = %v; want ErrNotSupported", err)
	}
}
