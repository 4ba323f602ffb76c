package structural

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/builder"
	"github.com/gofhir/epadoc/model"
)

func check(t *testing.T, input string) []epadoc.Message {
	t.Helper()
	doc, err := model.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	msgs, err := New().Check(context.Background(), doc)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	return msgs
}

func errorsOf(msgs []epadoc.Message) []epadoc.Message {
	var out []epadoc.Message
	for _, m := range msgs {
		if m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

// hasMessage reports whether a message of severity sev at loc contains text.
func hasMessage(msgs []epadoc.Message, sev epadoc.Severity, loc, text string) bool {
	for _, m := range msgs {
		if m.Severity == sev && m.Location == loc && strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

func TestCheck_BuiltDocuments(t *testing.T) {
	b := builder.New(builder.WithClock(func() time.Time {
		return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	}))

	for _, tmpl := range []builder.Template{builder.PlainDocument, builder.MedicationDocument} {
		t.Run(tmpl.Name, func(t *testing.T) {
			doc, err := model.FromBundle(b.Build(tmpl))
			if err != nil {
				t.Fatal(err)
			}
			msgs, err := New().Check(context.Background(), doc)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 0 {
				t.Errorf("messages = %v; want none", msgs)
			}
		})
	}
}

func TestCheck_SamplePatient(t *testing.T) {
	doc, err := model.FromEntity(builder.New().SamplePatient())
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := New().Check(context.Background(), doc)
	if err != nil || len(msgs) != 0 {
		t.Errorf("Check() = %v, %v; want no messages", msgs, err)
	}
}

func TestCheck_Resources(t *testing.T) {
	tests := []struct {
		name  string
		input string
		loc   string
		text  string
	}{
		{"missing resourceType", `{"id":"1"}`, "", "Missing 'resourceType' property"},
		{"non-string resourceType", `{"resourceType":7}`, "resourceType", "non-empty string"},
		{"unknown type", `{"resourceType":"Banana"}`, "Banana", "Unknown resource type 'Banana'"},
		{"bad id", `{"resourceType":"Patient","id":"has space"}`, "Patient.id", "does not match expected format for type id"},
		{"id on rule-less kind", `{"resourceType":"Basic","id":"a_b"}`, "Basic.id", "does not match expected format"},
		{"boolean as string", `{"resourceType":"Patient","active":"true"}`, "Patient.active", "must be a boolean"},
		{"bad date", `{"resourceType":"Patient","birthDate":"01.02.1990"}`, "Patient.birthDate", "expected format for type date"},
		{"empty string", `{"resourceType":"Patient","gender":"  "}`, "Patient.gender", "@value cannot be empty"},
		{"array expected", `{"resourceType":"Patient","name":{"family":"X"}}`, "Patient.name", "must be an Array, not object"},
		{"single expected", `{"resourceType":"Patient","gender":["male"]}`, "Patient.gender", "single value, not an array"},
		{"empty array", `{"resourceType":"Patient","name":[]}`, "Patient.name", "Array cannot be empty"},
		{"complex expected", `{"resourceType":"Patient","maritalStatus":"M"}`, "Patient.maritalStatus", "complex value must be an object, found string"},
		{"missing required", `{"resourceType":"Observation","code":{"text":"x"}}`, "Observation.status", "Minimum cardinality of 'Observation.status' is 1"},
		{"missing required choice", `{"resourceType":"MedicationStatement","status":"active","subject":{"reference":"Patient/1"}}`,
			"MedicationStatement.medication[x]", "Minimum cardinality"},
		{"two choice variants", `{"resourceType":"Observation","status":"final","code":{},"valueString":"a","valueBoolean":true}`,
			"Observation.value[x]", "Only one of value[x] may be present, found valueBoolean, valueString"},
		{"disallowed choice type", `{"resourceType":"Patient","deceasedString":"yes"}`, "Patient.deceasedString", "Type 'String' is not allowed"},
		{"choice value shape", `{"resourceType":"Observation","status":"final","code":{},"valueInteger":1.5}`,
			"Observation.valueInteger", "is not a valid integer"},
		{"nested child", `{"resourceType":"Patient","communication":[{"preferred":true}]}`,
			"Patient.communication[0].language", "Minimum cardinality"},
		{"bad reference", `{"resourceType":"Patient","managingOrganization":{"reference":"not a ref"}}`,
			"Patient.managingOrganization.reference", "Invalid Reference format"},
		{"contained missing type", `{"resourceType":"Patient","contained":[{"id":"x"}]}`, "Patient.contained[0]", "Missing 'resourceType'"},
		{"meta profile shape", `{"resourceType":"Patient","meta":{"profile":"http://x"}}`, "Patient.meta.profile", "must be an Array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := check(t, tt.input)
			if !hasMessage(msgs, epadoc.SeverityError, tt.loc, tt.text) {
				t.Errorf("messages = %v; want ERROR at %q containing %q", msgs, tt.loc, tt.text)
			}
		})
	}
}

func TestCheck_ValidResources(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"minimal patient", `{"resourceType":"Patient"}`},
		{"shadow element satisfies min", `{"resourceType":"Observation","_status":{"extension":[]},"code":{}}`},
		{"open choice", `{"resourceType":"Observation","status":"final","code":{},"effectiveTiming":{}}`},
		{"unlisted elements accepted", `{"resourceType":"Patient","somethingElse":1}`},
		{"known kind without rule", `{"resourceType":"Task","id":"t1","anything":[1,2]}`},
		{"urn reference shape", `{"resourceType":"Patient","managingOrganization":{"reference":"urn:uuid:id-1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msgs := errorsOf(check(t, tt.input)); len(msgs) != 0 {
				t.Errorf("errors = %v; want none", msgs)
			}
		})
	}
}

const docHeader = `"resourceType":"Bundle","type":"document",
	"identifier":{"system":"urn:ietf:rfc:3986","value":"urn:uuid:b"},
	"timestamp":"2024-03-01T10:30:00Z"`

const composition = `{"fullUrl":"urn:uuid:c","resource":{"resourceType":"Composition","id":"c","status":"final",
	"type":{"text":"t"},"date":"2024-03-01","title":"T","author":[{"reference":"urn:uuid:p"}],
	"subject":{"reference":"urn:uuid:p"}}}`

const patient = `{"fullUrl":"urn:uuid:p","resource":{"resourceType":"Patient","id":"p"}}`

func TestCheck_DocumentBundle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		sev   epadoc.Severity
		loc   string
		text  string
	}{
		{"no identifier", `{"resourceType":"Bundle","type":"document","timestamp":"2024-03-01T10:30:00Z","entry":[` + composition + `,` + patient + `]}`,
			epadoc.SeverityError, "Bundle", "identifier with a system and a value"},
		{"no timestamp", `{"resourceType":"Bundle","type":"document","identifier":{"system":"s","value":"v"},"entry":[` + composition + `,` + patient + `]}`,
			epadoc.SeverityError, "Bundle", "must have a date"},
		{"no entries", `{` + docHeader + `}`,
			epadoc.SeverityError, "Bundle", "Composition as the first resource"},
		{"composition not first", `{` + docHeader + `,"entry":[` + patient + `,` + composition + `]}`,
			epadoc.SeverityError, "Bundle.entry[0]", "Composition as the first resource, found Patient"},
		{"second composition", `{` + docHeader + `,"entry":[` + composition + `,` + patient + `,` + composition + `]}`,
			epadoc.SeverityError, "Bundle.entry[2].resource", "only one Composition"},
		{"duplicate fullUrl", `{` + docHeader + `,"entry":[` + composition + `,` + patient + `,` + patient + `]}`,
			epadoc.SeverityError, "Bundle", "Duplicate fullUrl 'urn:uuid:p'"},
		{"missing fullUrl", `{` + docHeader + `,"entry":[` + composition + `,{"resource":{"resourceType":"Patient","id":"p"}}]}`,
			epadoc.SeverityError, "Bundle.entry[1]", "must have a fullUrl"},
		{"dangling urn", `{` + docHeader + `,"entry":[` + composition + `]}`,
			epadoc.SeverityError, "Bundle.entry[0].resource.author[0].reference", "Unable to resolve reference 'urn:uuid:p'"},
		{"unresolved relative", `{` + docHeader + `,"entry":[` + composition + `,` + patient +
			`,{"fullUrl":"urn:uuid:o","resource":{"resourceType":"Observation","status":"final","code":{},"subject":{"reference":"Patient/x"}}}]}`,
			epadoc.SeverityWarning, "Bundle.entry[2].resource.subject.reference", "cannot be resolved within the bundle"},
		{"fullUrl id mismatch", `{` + docHeader + `,"entry":[` + composition + `,` + patient +
			`,{"fullUrl":"http://example.org/fhir/Patient/a","resource":{"resourceType":"Patient","id":"b"}}]}`,
			epadoc.SeverityError, "Bundle.entry[2].fullUrl", "does not match the resource id 'b'"},
		{"total on document", `{` + docHeader + `,"total":1,"entry":[` + composition + `,` + patient + `]}`,
			epadoc.SeverityError, "Bundle", "total only when a search or history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := check(t, tt.input)
			if !hasMessage(msgs, tt.sev, tt.loc, tt.text) {
				t.Errorf("messages = %v; want %s at %q containing %q", msgs, tt.sev, tt.loc, tt.text)
			}
		})
	}
}

func TestCheck_DocumentBundleValid(t *testing.T) {
	input := `{` + docHeader + `,"entry":[` + composition + `,` + patient +
		`,{"fullUrl":"http://example.org/fhir/Patient/q","resource":{"resourceType":"Patient","id":"q",
		"link":[{"other":{"reference":"Patient/q"},"type":"seealso"}]}}]}`
	if msgs := check(t, input); len(msgs) != 0 {
		t.Errorf("messages = %v; want none", msgs)
	}
}

func TestCheck_CollectionBundle(t *testing.T) {
	input := `{"resourceType":"Bundle","type":"collection","entry":[` + patient +
		`,{"resource":{"resourceType":"Observation","status":"final","code":{},"subject":{"reference":"Patient/elsewhere"}}}]}`
	if msgs := check(t, input); len(msgs) != 0 {
		t.Errorf("messages = %v; want none", msgs)
	}
}

func TestCheck_Canceled(t *testing.T) {
	doc, _ := model.Parse([]byte(`{"resourceType":"Patient"}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Check(ctx, doc); err == nil {
		t.Error("Check() with canceled context should fail")
	}
}

func TestChoiceType(t *testing.T) {
	value := Element{Name: "value[x]", Choices: []Type{TypeQuantity, TypeString, TypeComplex}}
	tests := []struct {
		suffix string
		want   Type
		ok     bool
	}{
		{"Quantity", TypeQuantity, true},
		{"String", TypeString, true},
		{"SampledData", TypeComplex, true},
		{"Boolean", "", false},
	}
	for _, tt := range tests {
		got, ok := choiceType(value, tt.suffix)
		if got != tt.want || ok != tt.ok {
			t.Errorf("choiceType(%q) = %q, %v; want %q, %v", tt.suffix, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsResourceType(t *testing.T) {
	for _, kind := range []string{"Patient", "Bundle", "MedicationStatement", "Composition"} {
		if !IsResourceType(kind) {
			t.Errorf("IsResourceType(%q) = false; want true", kind)
		}
	}
	if IsResourceType("patient") || IsResourceType("") {
		t.Error("IsResourceType should be case sensitive and reject empty")
	}
	if New().Rules() < 15 {
		t.Errorf("Rules() = %d; want at least 15", New().Rules())
	}
}
