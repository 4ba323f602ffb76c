package server

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/builder"
)

// ResultBody is the body of /api/validation/test-generated and
// /api/validation/validate.
type ResultBody struct {
	Valid         bool   `json:"valid"`
	MessageCount  int    `json:"messageCount"`
	Summary       string `json:"summary"`
	ValidatedJSON string `json:"validatedJson,omitempty"`
}

func resultBody(resp *epadoc.Response, validated []byte) ResultBody {
	return ResultBody{
		Valid:         resp.Valid(),
		MessageCount:  resp.Len(),
		Summary:       resp.String(),
		ValidatedJSON: string(validated),
	}
}

// statusOf is 200 for a valid response and 400 otherwise.
func statusOf(resp *epadoc.Response) int {
	if resp.Valid() {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func writeJSON(c echo.Context, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, data)
}

// buildJSON builds a bundle from t and encodes it.
func (s *Server) buildJSON(t builder.Template) ([]byte, error) {
	return json.Marshal(s.builder.Build(t))
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "FHIR version: "+epadoc.R4.Release())
}

func (s *Server) test(c echo.Context) error {
	return c.String(http.StatusOK, "Test")
}

func (s *Server) sample(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.builder.SamplePatient())
}

func (s *Server) document(c echo.Context) error {
	data, err := s.buildJSON(builder.PlainDocument)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (s *Server) medicationDocument(c echo.Context) error {
	data, err := s.buildJSON(builder.MedicationDocument)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// validateGenerated builds a medication document and returns the text
// summary of its validation.
func (s *Server) validateGenerated(c echo.Context) error {
	data, err := s.buildJSON(builder.MedicationDocument)
	if err != nil {
		return err
	}
	resp := s.validator.ValidateJSON(c.Request().Context(), data)
	return c.String(http.StatusOK, resp.String())
}

func (s *Server) testGenerated(c echo.Context) error {
	data, err := s.buildJSON(builder.MedicationDocument)
	if err != nil {
		return err
	}
	resp := s.validator.ValidateJSON(c.Request().Context(), data)
	return writeJSON(c, http.StatusOK, resultBody(resp, data))
}

func (s *Server) validate(c echo.Context) error {
	resp, err := s.validateBody(c)
	if err != nil {
		return err
	}
	return writeJSON(c, statusOf(resp), resultBody(resp, nil))
}

func (s *Server) validateDetailed(c echo.Context) error {
	resp, err := s.validateBody(c)
	if err != nil {
		return err
	}
	return writeJSON(c, statusOf(resp), resp.Detailed())
}

func (s *Server) validateBody(c echo.Context) (*epadoc.Response, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read request body").SetInternal(err)
	}
	return s.validator.ValidateJSON(c.Request().Context(), body), nil
}

func (s *Server) validationHealth(c echo.Context) error {
	return c.String(http.StatusOK, "EPA Medication Validation Service is running")
}
