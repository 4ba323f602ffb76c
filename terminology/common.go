package terminology

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/epa"
	"github.com/gofhir/epadoc/service"
	"github.com/gofhir/epadoc/specs"
)

// CommonName is the name of the common code system checker.
const CommonName = "common"

// Code systems checked by rule rather than by lookup.
const (
	SystemISO3166 = "urn:iso:std:iso:3166"
	SystemBCP47   = "urn:ietf:bcp:47"
	SystemMIME    = "urn:ietf:bcp:13"
)

var (
	loincPattern     = regexp.MustCompile(`^[0-9]{1,7}-[0-9]$`)
	loincPartPattern = regexp.MustCompile(`^L[APG][0-9]+-[0-9]$`)
	pznPattern       = regexp.MustCompile(`^[0-9]{8}$`)
	kvidPattern      = regexp.MustCompile(`^[A-Z][0-9]{9}$`)
	bcp47Pattern     = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z]{4})?(-([a-zA-Z]{2}|[0-9]{3}))?(-[a-zA-Z0-9]{5,8}|-[0-9][a-zA-Z0-9]{3})*(-x(-[a-zA-Z0-9]{1,8})+)?$`)
	mimePattern      = regexp.MustCompile(`^[a-z]+/[a-zA-Z0-9!#$&^_.+\-]+(\s*;\s*[a-zA-Z0-9\-]+=("[^"]*"|[^;\s]+))*$`)
)

var mimeTopLevel = map[string]bool{
	"application": true, "audio": true, "font": true, "image": true, "message": true,
	"model": true, "multipart": true, "text": true, "video": true,
}

// UCUM units commonly found in clinical and medication documents. Units not
// listed are reported as warnings only.
var ucumUnits = toSet(
	"1", "%", "Cel", "[degF]", "K",
	"g", "mg", "ug", "ng", "kg", "mmol", "umol", "mol", "meq", "[iU]", "[IU]", "U",
	"L", "mL", "dL", "uL",
	"g/L", "g/dL", "mg/dL", "mg/L", "ug/L", "ng/mL", "mmol/L", "umol/L", "[iU]/L", "U/L", "/uL", "10*3/uL", "10*6/uL", "10*9/L", "10*12/L",
	"mm[Hg]", "cm[H2O]", "kPa",
	"m", "cm", "mm", "[in_i]", "m2", "kg/m2",
	"s", "min", "h", "d", "wk", "mo", "a", "/min", "/h", "/d",
	"mg/kg", "mg/d", "mL/h", "mL/min", "L/min", "mL/min/{1.73_m2}",
	"{tbl}", "{Stueck}", "{Tablette}", "{Kapsel}", "{Hub}", "{Tropfen}", "[drp]", "{Beutel}", "{Pflaster}",
)

func toSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// coreBindings are the required bindings of top-level code elements of the
// base resources. They are checked against the value sets of the validator
// the checker was given.
var coreBindings = map[string]string{
	"Bundle.type":                 "http://hl7.org/fhir/ValueSet/bundle-type",
	"Patient.gender":              "http://hl7.org/fhir/ValueSet/administrative-gender",
	"Practitioner.gender":         "http://hl7.org/fhir/ValueSet/administrative-gender",
	"Composition.status":          "http://hl7.org/fhir/ValueSet/composition-status",
	"Composition.confidentiality": "http://terminology.hl7.org/ValueSet/v3-ConfidentialityClassification",
	"Observation.status":          "http://hl7.org/fhir/ValueSet/observation-status",
	"Medication.status":           "http://hl7.org/fhir/ValueSet/medication-status",
	"MedicationStatement.status":  "http://hl7.org/fhir/ValueSet/medication-statement-status",
	"MedicationRequest.status":    "http://hl7.org/fhir/ValueSet/medicationrequest-status",
	"MedicationRequest.intent":    "http://hl7.org/fhir/ValueSet/medicationrequest-intent",
	"MedicationDispense.status":   "http://hl7.org/fhir/ValueSet/medicationdispense-status",
	"Encounter.status":            "http://hl7.org/fhir/ValueSet/encounter-status",
	"DocumentReference.status":    "http://hl7.org/fhir/ValueSet/document-reference-status",
}

// Common checks codes of well-known code systems by rule: LOINC and PZN
// check digits, UCUM units, ISO 3166 country codes, BCP-47 language tags,
// MIME types, German identifier formats, and the required bindings of the
// base resources.
type Common struct {
	countries map[string]string
	bindings  service.CodeValidator
}

// NewCommon creates the checker. bindings validates the core value sets; a
// nil validator skips those checks.
func NewCommon(bindings service.CodeValidator) (*Common, error) {
	data, err := specs.ReadFile(specs.SeedFiles.Countries)
	if err != nil {
		return nil, err
	}
	var cs struct {
		Concept []struct {
			Code    string `json:"code"`
			Display string `json:"display"`
		} `json:"concept"`
	}
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", specs.SeedFiles.Countries, err)
	}
	countries := make(map[string]string, len(cs.Concept))
	for _, c := range cs.Concept {
		countries[c.Code] = c.Display
	}
	return &Common{countries: countries, bindings: bindings}, nil
}

// Name returns "common".
func (c *Common) Name() string {
	return CommonName
}

// Check validates codes, identifiers, language tags and content types.
func (c *Common) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	var msgs epadoc.Messages

	walkObjects(doc.Tree, doc.Kind(), func(path string, obj map[string]any) {
		if system, code, ok := coding(obj); ok {
			c.checkCode(&msgs, path+".code", system, code)
		}
		if system, ok := obj["system"].(string); ok {
			if value, ok := obj["value"].(string); ok {
				checkIdentifier(&msgs, path+".value", system, value)
			}
		}
		if ct, ok := obj["contentType"].(string); ok {
			if msg := checkMIME(ct); msg != "" {
				msgs.Error(path+".contentType", "%s", msg)
			}
		}
		if _, isResource := obj["resourceType"]; isResource {
			if lang, ok := obj["language"].(string); ok && !bcp47Pattern.MatchString(lang) {
				msgs.Error(path+".language", "The language code '%s' is not a valid BCP-47 tag", lang)
			}
		}
	})

	if c.bindings != nil {
		for _, r := range doc.Resources() {
			if err := c.checkBindings(ctx, &msgs, r); err != nil {
				return nil, err
			}
		}
	}
	return msgs.List(), nil
}

func (c *Common) checkCode(msgs *epadoc.Messages, path, system, code string) {
	switch system {
	case epa.SystemLOINC:
		switch {
		case loincPartPattern.MatchString(code):
		case !loincPattern.MatchString(code):
			msgs.Error(path, "The code '%s' is not a valid LOINC code (expected digits, a dash and a check digit)", code)
		case !ValidLOINC(code):
			msgs.Error(path, "The LOINC code '%s' has an invalid check digit", code)
		}
	case epa.SystemPZN:
		if !ValidPZN(code) {
			msgs.Error(path, "The code '%s' is not a valid PZN (8 digits with a modulo 11 check digit)", code)
		}
	case epa.SystemUCUM:
		switch {
		case strings.ContainsAny(code, " \t\n"):
			msgs.Error(path, "The UCUM code '%s' must not contain whitespace", code)
		case !ucumUnits[code]:
			msgs.Warning(path, "Unit '%s' is not in the list of common UCUM units and could not be verified", code)
		}
	case SystemISO3166:
		if _, ok := c.countries[code]; !ok {
			msgs.Error(path, "Unknown code '%s' in the CodeSystem '%s'", code, SystemISO3166)
		}
	case SystemBCP47:
		if !bcp47Pattern.MatchString(code) {
			msgs.Error(path, "The language code '%s' is not a valid BCP-47 tag", code)
		}
	case SystemMIME:
		if msg := checkMIME(code); msg != "" {
			msgs.Error(path, "%s", msg)
		}
	}
}

// checkIdentifier warns about identifier values that do not follow the
// format of their naming system.
func checkIdentifier(msgs *epadoc.Messages, path, system, value string) {
	switch system {
	case epa.NamingKVID10:
		if !kvidPattern.MatchString(value) {
			msgs.Warning(path, "The KVID-10 '%s' does not match the expected format (one capital letter followed by 9 digits)", value)
		}
	case epa.NamingPZN:
		if !ValidPZN(value) {
			msgs.Warning(path, "The PZN '%s' is not a valid PZN (8 digits with a modulo 11 check digit)", value)
		}
	}
}

func checkMIME(ct string) string {
	if !mimePattern.MatchString(ct) {
		return fmt.Sprintf("The MIME type '%s' is not valid", ct)
	}
	top := ct[:strings.IndexByte(ct, '/')]
	if !mimeTopLevel[top] {
		return fmt.Sprintf("The MIME type '%s' has an unknown top-level type '%s'", ct, top)
	}
	return ""
}

func (c *Common) checkBindings(ctx context.Context, msgs *epadoc.Messages, r model.Resource) error {
	for _, b := range bindingsOf(r.Kind) {
		element := strings.TrimPrefix(b.key, r.Kind+".")
		code, ok := r.Data[element].(string)
		if !ok || code == "" {
			continue
		}
		result, err := c.bindings.ValidateCode(ctx, "", code, b.valueSet)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrNotSupported) {
				continue
			}
			return err
		}
		if !result.Valid {
			msgs.Error(r.Path+"."+element, "The value provided ('%s') is not in the value set '%s'", code, b.valueSet)
		}
	}
	return nil
}

type binding struct {
	key      string
	valueSet string
}

// bindingsOf returns the core bindings of kind in element order.
func bindingsOf(kind string) []binding {
	var out []binding
	for key, vs := range coreBindings {
		if strings.HasPrefix(key, kind+".") {
			out = append(out, binding{key: key, valueSet: vs})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// ValidLOINC reports whether code ("8310-5") has a correct mod 10 check
// digit.
func ValidLOINC(code string) bool {
	if !loincPattern.MatchString(code) {
		return false
	}
	digits := code[:len(code)-2]
	check := int(code[len(code)-1] - '0')

	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10-sum%10)%10 == check
}

// ValidPZN reports whether code is an 8-digit PZN with a correct modulo 11
// check digit.
func ValidPZN(code string) bool {
	if !pznPattern.MatchString(code) {
		return false
	}
	sum := 0
	for i := 0; i < 7; i++ {
		sum += int(code[i]-'0') * (i + 1)
	}
	check := sum % 11
	return check != 10 && check == int(code[7]-'0')
}
