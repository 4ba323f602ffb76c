package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/builder"
	"github.com/gofhir/epadoc/engine"
	"github.com/gofhir/epadoc/internal/fixture"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	eng, err := engine.New(context.Background(),
		epadoc.WithPackageData(fixture.EPAPackage()),
		epadoc.WithPackageCacheDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	b := builder.New(builder.WithClock(func() time.Time {
		return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	}))
	return New(cfg, eng, b, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTextEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	tests := []struct {
		path string
		want string
	}{
		{"/health", "FHIR version: 4.0.1"},
		{"/test", "Test"},
		{"/api/validation/health", "EPA Medication Validation Service is running"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want 200", rec.Code)
			}
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestBuildEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	tests := []struct {
		path         string
		resourceType string
		entries      int
	}{
		{"/sample", "Patient", 0},
		{"/document", "Bundle", 4},
		{"/medication-document", "Bundle", 5},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q; want application/json", ct)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["resourceType"] != tt.resourceType {
				t.Errorf("resourceType = %v; want %s", body["resourceType"], tt.resourceType)
			}
			if tt.entries > 0 {
				entries, _ := body["entry"].([]any)
				if len(entries) != tt.entries {
					t.Errorf("entries = %d; want %d", len(entries), tt.entries)
				}
			}
		})
	}
}

func TestValidateGenerated(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/validate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Validation SUCCESSFUL\nTotal messages: 0") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTestGenerated(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/validation/test-generated", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var body ResultBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Valid || body.MessageCount != 0 {
		t.Errorf("valid = %v, messageCount = %d; want true, 0 (%s)", body.Valid, body.MessageCount, body.Summary)
	}
	if !strings.Contains(body.ValidatedJSON, `"resourceType":"Bundle"`) {
		t.Errorf("validatedJson = %q; want the bundle", body.ValidatedJSON)
	}
}

func TestValidate(t *testing.T) {
	s := newTestServer(t, Config{})
	good := do(t, s, http.MethodGet, "/document", "").Body.String()

	tests := []struct {
		name      string
		body      string
		status    int
		valid     bool
		inSummary string
	}{
		{"valid document", good, http.StatusOK, true, "Validation SUCCESSFUL"},
		{"parse failure", "{not json", http.StatusBadRequest, false, "Failed to parse JSON: "},
		{"structural error", `{"resourceType":"Patient","active":"yes"}`, http.StatusBadRequest, false, "Patient.active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/validation/validate", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d; want %d", rec.Code, tt.status)
			}
			if strings.Contains(rec.Body.String(), "validatedJson") {
				t.Error("body contains validatedJson")
			}
			var body ResultBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Valid != tt.valid {
				t.Errorf("valid = %v; want %v", body.Valid, tt.valid)
			}
			if !strings.Contains(body.Summary, tt.inSummary) {
				t.Errorf("summary = %q; want it to contain %q", body.Summary, tt.inSummary)
			}
		})
	}
}

func TestValidateDetailed(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodPost, "/api/validation/validate-detailed", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"valid", "totalMessages", "errorCount", "warningCount",
		"informationCount", "errors", "warnings", "information"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if body["errorCount"] != float64(1) {
		t.Errorf("errorCount = %v; want 1", body["errorCount"])
	}
	errs, _ := body["errors"].([]any)
	if len(errs) != 1 {
		t.Fatalf("errors = %v; want one", errs)
	}
	msg := errs[0].(map[string]any)
	if msg["severity"] != "ERROR" || msg["location"] != "" {
		t.Errorf("error = %v; want root ERROR", msg)
	}
	if text, _ := msg["message"].(string); !strings.HasPrefix(text, "Failed to parse JSON: ") {
		t.Errorf("message = %q", text)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q; want abc-123", got)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d; want 200", i, rec.Code)
		}
	}
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d; want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, Config{BodyLimit: "1K"})

	rec := do(t, s, http.MethodPost, "/api/validation/validate", `{"x":"`+strings.Repeat("a", 2048)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; want 413", rec.Code)
	}
}

type panicking struct{ calls atomic.Int32 }

func (p *panicking) ValidateJSON(context.Context, []byte) *epadoc.Response {
	p.calls.Add(1)
	panic("validator exploded")
}

func TestRecovery(t *testing.T) {
	v := &panicking{}
	s := New(Config{}, v, builder.New(), zerolog.Nop())

	rec := do(t, s, http.MethodPost, "/api/validation/validate", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", rec.Code)
	}
	if v.calls.Load() != 1 {
		t.Errorf("calls = %d; want 1", v.calls.Load())
	}
}
