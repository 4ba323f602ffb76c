// Package structural checks FHIR resources against the base R4 schema of
// the resource kinds used in clinical documents and checks the integrity of
// document bundles.
package structural

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
)

// Name is the checker name used in messages and cache keys.
const Name = "structural"

// Checker is the structural checker. It is stateless and safe for
// concurrent use.
type Checker struct {
	rules map[string]Rule
}

// New creates a structural checker over BaseRules.
func New() *Checker {
	return &Checker{rules: BaseRules}
}

// Name returns "structural".
func (c *Checker) Name() string {
	return Name
}

// Rules returns the number of resource kinds with a base definition.
func (c *Checker) Rules() int {
	return len(c.rules)
}

// Check validates every resource of doc and, for a Bundle, the bundle rules.
func (c *Checker) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	var msgs epadoc.Messages

	for _, r := range doc.Resources() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.checkResource(&msgs, r)
	}
	if doc.Kind() == "Bundle" {
		checkBundle(&msgs, doc)
	}
	return msgs.List(), nil
}

func (c *Checker) checkResource(msgs *epadoc.Messages, r model.Resource) {
	path := r.Path
	if r.Kind == "" {
		if _, has := r.Data["resourceType"]; has {
			msgs.Error(strings.TrimPrefix(path+".resourceType", "."), "Error parsing JSON: the primitive value must be a non-empty string")
		} else {
			msgs.Error(path, "Missing 'resourceType' property")
		}
		return
	}
	if !IsResourceType(r.Kind) {
		msgs.Error(path, "Unknown resource type '%s'", r.Kind)
		return
	}

	rule, ok := c.rules[r.Kind]
	if !ok {
		if id, has := r.Data["id"]; has {
			checkValue(msgs, id, TypeID, path+".id")
		}
		return
	}
	checkElements(msgs, r.Data, rule.Elements, path)
}

// checkElements checks the listed elements of obj. Unlisted keys are
// accepted.
func checkElements(msgs *epadoc.Messages, obj map[string]any, elements []Element, path string) {
	for _, e := range elements {
		if e.IsChoice() {
			checkChoice(msgs, obj, e, path)
			continue
		}

		p := path + "." + e.Name
		value, ok := obj[e.Name]
		if !ok {
			if _, shadow := obj["_"+e.Name]; !shadow && e.Min > 0 {
				msgs.Error(p, "Minimum cardinality of '%s' is %d, but found 0", p, e.Min)
			}
			continue
		}

		if !e.Repeats() {
			if arr, isArr := value.([]any); isArr {
				msgs.Error(p, "This property must be a single value, not an array (found %d items)", len(arr))
				continue
			}
			checkItem(msgs, value, e, p)
			continue
		}

		arr, isArr := value.([]any)
		if !isArr {
			msgs.Error(p, "This property must be an Array, not %s", model.TypeName(value))
			continue
		}
		if len(arr) == 0 {
			msgs.Error(p, "Array cannot be empty - the property should not be present if it has no values")
			continue
		}
		if len(arr) < e.Min {
			msgs.Error(p, "Minimum cardinality of '%s' is %d, but found %d", p, e.Min, len(arr))
		}
		for i, item := range arr {
			checkItem(msgs, item, e, fmt.Sprintf("%s[%d]", p, i))
		}
	}
}

func checkItem(msgs *epadoc.Messages, value any, e Element, path string) {
	checkValue(msgs, value, e.Type, path)
	if len(e.Children) == 0 {
		return
	}
	if m, ok := value.(map[string]any); ok {
		checkElements(msgs, m, e.Children, path)
	}
}

// checkChoice checks a name[x] element: at most one type variant may be
// present and it must be one of the allowed types.
func checkChoice(msgs *epadoc.Messages, obj map[string]any, e Element, path string) {
	base := strings.TrimSuffix(e.Name, "[x]")

	var found []string
	for key := range obj {
		if suffix, ok := strings.CutPrefix(key, base); ok && suffix != "" && unicode.IsUpper(rune(suffix[0])) {
			found = append(found, key)
		}
	}
	sort.Strings(found)

	p := path + "." + e.Name
	switch {
	case len(found) == 0:
		if e.Min > 0 {
			msgs.Error(p, "Minimum cardinality of '%s' is %d, but found 0", p, e.Min)
		}
		return
	case len(found) > 1:
		msgs.Error(p, "Only one of %s may be present, found %s", e.Name, strings.Join(found, ", "))
	}

	for _, key := range found {
		t, ok := choiceType(e, strings.TrimPrefix(key, base))
		if !ok {
			msgs.Error(path+"."+key, "Type '%s' is not allowed for %s", strings.TrimPrefix(key, base), e.Name)
			continue
		}
		value := obj[key]
		if arr, isArr := value.([]any); isArr {
			msgs.Error(path+"."+key, "This property must be a single value, not an array (found %d items)", len(arr))
			continue
		}
		checkValue(msgs, value, t, path+"."+key)
	}
}

// choiceType maps a choice key suffix ("Quantity", "DateTime") to one of the
// element's allowed types. TypeComplex in the allowed list accepts any other
// complex type.
func choiceType(e Element, suffix string) (Type, bool) {
	open := false
	for _, t := range e.Choices {
		if t == TypeComplex {
			open = true
			continue
		}
		if typeSuffix(t) == suffix {
			return t, true
		}
	}
	if open && !isPrimitiveSuffix(suffix) {
		return TypeComplex, true
	}
	return "", false
}

func typeSuffix(t Type) string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var primitiveSuffixes = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range []Type{
		TypeBoolean, TypeInteger, TypeUnsignedInt, TypePositiveInt, TypeDecimal, TypeString,
		TypeMarkdown, TypeCode, TypeID, TypeURI, TypeURL, TypeCanonical, TypeDate,
		TypeDateTime, TypeInstant, TypeTime, TypeBase64,
	} {
		m[typeSuffix(t)] = true
	}
	return m
}()

func isPrimitiveSuffix(s string) bool {
	return primitiveSuffixes[s]
}
