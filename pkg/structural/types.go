package structural

import (
	"math"
	"regexp"
	"strings"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/reference"
)

// Type is the FHIR data type of an element.
type Type string

// Primitive types.
const (
	TypeBoolean     Type = "boolean"
	TypeInteger     Type = "integer"
	TypeUnsignedInt Type = "unsignedInt"
	TypePositiveInt Type = "positiveInt"
	TypeDecimal     Type = "decimal"
	TypeString      Type = "string"
	TypeMarkdown    Type = "markdown"
	TypeCode        Type = "code"
	TypeID          Type = "id"
	TypeURI         Type = "uri"
	TypeURL         Type = "url"
	TypeCanonical   Type = "canonical"
	TypeDate        Type = "date"
	TypeDateTime    Type = "dateTime"
	TypeInstant     Type = "instant"
	TypeTime        Type = "time"
	TypeBase64      Type = "base64Binary"
)

// Complex types.
const (
	TypeCoding          Type = "Coding"
	TypeCodeableConcept Type = "CodeableConcept"
	TypeIdentifier      Type = "Identifier"
	TypeReference       Type = "Reference"
	TypeHumanName       Type = "HumanName"
	TypeQuantity        Type = "Quantity"
	TypePeriod          Type = "Period"
	TypeBackbone        Type = "BackboneElement"
	TypeResource        Type = "Resource"
	TypeComplex         Type = "Element" // any other complex datatype
)

// Primitive format patterns from the FHIR R4 datatype definitions.
var formats = map[Type]*regexp.Regexp{
	TypeCode:      regexp.MustCompile(`^[^\s]+( [^\s]+)*$`),
	TypeID:        regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`),
	TypeURI:       regexp.MustCompile(`^\S*$`),
	TypeURL:       regexp.MustCompile(`^\S*$`),
	TypeCanonical: regexp.MustCompile(`^\S*$`),
	TypeDate:      regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`),
	TypeDateTime:  regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)))?)?)?$`),
	TypeInstant:   regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`),
	TypeTime:      regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?$`),
	TypeBase64:    regexp.MustCompile(`^(\s*([0-9a-zA-Z+/=]){4}\s*)+$`),
}

// IsPrimitive reports whether t is a primitive type.
func (t Type) IsPrimitive() bool {
	return t != "" && t[0] >= 'a' && t[0] <= 'z'
}

// checkValue reports shape and format problems of one (non-array) value.
func checkValue(msgs *epadoc.Messages, value any, t Type, path string) {
	switch t {
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			msgs.Error(path, "Error parsing JSON: the primitive value must be a boolean")
		}
	case TypeDecimal:
		if _, ok := value.(float64); !ok {
			msgs.Error(path, "Error parsing JSON: the primitive value must be a number")
		}
	case TypeInteger, TypeUnsignedInt, TypePositiveInt:
		checkInteger(msgs, value, t, path)
	case TypeCoding, TypeCodeableConcept, TypeIdentifier, TypeHumanName, TypeQuantity,
		TypePeriod, TypeBackbone, TypeComplex:
		if _, ok := value.(map[string]any); !ok {
			msgs.Error(path, "Error parsing JSON: the complex value must be an object, found %s", model.TypeName(value))
		}
	case TypeReference:
		checkReferenceShape(msgs, value, path)
	case TypeResource:
		// The resource itself is checked on its own by Check.
		if _, ok := value.(map[string]any); !ok {
			msgs.Error(path, "Error parsing JSON: a resource must be an object, found %s", model.TypeName(value))
		}
	default:
		s, ok := value.(string)
		if !ok {
			msgs.Error(path, "Error parsing JSON: the primitive value must be a string")
			return
		}
		if strings.TrimSpace(s) == "" {
			msgs.Error(path, "@value cannot be empty")
			return
		}
		if re := formats[t]; re != nil && !re.MatchString(s) {
			msgs.Error(path, "Value '%s' does not match expected format for type %s", truncate(s), t)
		}
	}
}

func checkInteger(msgs *epadoc.Messages, value any, t Type, path string) {
	f, ok := value.(float64)
	if !ok {
		msgs.Error(path, "Error parsing JSON: the primitive value must be a number")
		return
	}
	if f != math.Trunc(f) {
		msgs.Error(path, "Value '%v' is not a valid %s", f, t)
		return
	}
	switch {
	case t == TypePositiveInt && f < 1:
		msgs.Error(path, "Value '%d' is not a valid positiveInt (must be >= 1)", int64(f))
	case t == TypeUnsignedInt && f < 0:
		msgs.Error(path, "Value '%d' is not a valid unsignedInt (must be >= 0)", int64(f))
	}
}

// checkReferenceShape checks that a Reference is an object and that its
// reference string, if any, has a recognizable form.
func checkReferenceShape(msgs *epadoc.Messages, value any, path string) {
	m, ok := value.(map[string]any)
	if !ok {
		msgs.Error(path, "Error parsing JSON: the complex value must be an object, found %s", model.TypeName(value))
		return
	}
	raw, has := m["reference"]
	if !has {
		return
	}
	ref, ok := raw.(string)
	if !ok {
		msgs.Error(path+".reference", "Error parsing JSON: the primitive value must be a string")
		return
	}
	if reference.Classify(ref) == reference.FormInvalid && !strings.HasPrefix(ref, reference.URNPrefix) {
		msgs.Error(path+".reference", "Invalid Reference format: '%s'", truncate(ref))
	}
}

func truncate(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
