package terminology

import (
	"context"
	"testing"

	"github.com/gofhir/epadoc/internal/fixture"
	"github.com/gofhir/epadoc/pkg/loader"
)

func TestLoadSeed(t *testing.T) {
	m := NewMemory()
	stats, err := m.LoadSeed()
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d; want 0", stats.Errors)
	}
	if stats.CodeSystemsLoaded != m.CountCodeSystems() || stats.ValueSetsLoaded != m.CountValueSets() {
		t.Errorf("stats = %+v; store holds %d code systems, %d value sets",
			stats, m.CountCodeSystems(), m.CountValueSets())
	}

	ctx := context.Background()
	for _, vs := range []string{
		"http://hl7.org/fhir/ValueSet/bundle-type",
		"http://hl7.org/fhir/ValueSet/composition-status",
		"http://hl7.org/fhir/ValueSet/medication-statement-status",
	} {
		if _, err := m.ValidateCode(ctx, "", "x", vs); err != nil {
			t.Errorf("value set %s not usable: %v", vs, err)
		}
	}
}

func TestLoadJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantCS  int
		wantVS  int
		wantErr bool
	}{
		{"code system", `{"resourceType":"CodeSystem","url":"http://x/cs","content":"fragment","concept":[{"code":"a"}]}`, 1, 0, false},
		{"value set", `{"resourceType":"ValueSet","url":"http://x/vs","compose":{"include":[{"system":"http://x/cs"}]}}`, 0, 1, false},
		{"code system without url", `{"resourceType":"CodeSystem"}`, 0, 0, true},
		{"unsupported", `{"resourceType":"Patient"}`, 0, 0, true},
		{"invalid json", `{`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := NewMemory().LoadJSON([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadJSON() error = %v; wantErr %v", err, tt.wantErr)
			}
			if stats.CodeSystemsLoaded != tt.wantCS || stats.ValueSetsLoaded != tt.wantVS {
				t.Errorf("stats = %+v; want %d code systems, %d value sets", stats, tt.wantCS, tt.wantVS)
			}
		})
	}
}

func TestLoadPackage(t *testing.T) {
	data := fixture.Tgz(map[string]string{
		"package/package.json":           `{"name":"example.terminology","version":"1.0.0"}`,
		"package/CodeSystem-colors.json": `{"resourceType":"CodeSystem","id":"colors","url":"http://example.org/colors","content":"complete","concept":[{"code":"red","display":"Red"}]}`,
		"package/ValueSet-colors.json":   `{"resourceType":"ValueSet","id":"colors","url":"http://example.org/vs/colors","compose":{"include":[{"system":"http://example.org/colors"}]}}`,
		"package/ValueSet-broken.json":   `{"resourceType":"ValueSet","id":"broken"}`,
	})
	pkg, err := loader.NewLoader(t.TempDir()).LoadFromTgzData(data)
	if err != nil {
		t.Fatalf("LoadFromTgzData() error = %v", err)
	}

	m := NewMemory()
	stats := m.LoadPackage(pkg)
	if stats.CodeSystemsLoaded != 1 || stats.ValueSetsLoaded != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v; want 1 code system, 1 value set, 1 error", stats)
	}

	r, err := m.ValidateCode(context.Background(), "http://example.org/colors", "red", "http://example.org/vs/colors")
	if err != nil || !r.Valid || r.Display != "Red" {
		t.Errorf("ValidateCode() = %+v, %v; want valid Red", r, err)
	}
}
