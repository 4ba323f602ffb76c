package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhirpath"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/cache"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/service"
)

// Name is the name of the profile-package checker.
const Name = "profile"

// Binding strengths.
const (
	StrengthRequired   = "required"
	StrengthExtensible = "extensible"
)

type compiled struct {
	expr *fhirpath.Expression
	err  error
}

// Checker validates every resource that declares a profile in meta.profile
// against that profile.
type Checker struct {
	registry           *Registry
	terminology        service.CodeValidator
	exprs              *cache.LRU[string, compiled]
	errorForUnknown    bool
	extensibleWarnings bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithTerminology sets the validator used for bindings. Without one,
// bindings are not checked.
func WithTerminology(v service.CodeValidator) Option {
	return func(c *Checker) {
		c.terminology = v
	}
}

// WithErrorForUnknownProfiles reports profiles missing from the registry as
// ERROR instead of WARNING.
func WithErrorForUnknownProfiles(enable bool) Option {
	return func(c *Checker) {
		c.errorForUnknown = enable
	}
}

// WithExtensibleWarnings reports codes outside extensible bindings as
// WARNING.
func WithExtensibleWarnings(enable bool) Option {
	return func(c *Checker) {
		c.extensibleWarnings = enable
	}
}

// New creates a checker over reg.
func New(reg *Registry, opts ...Option) *Checker {
	c := &Checker{
		registry: reg,
		exprs:    cache.NewLRU[string, compiled](500),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns "profile".
func (c *Checker) Name() string {
	return Name
}

// Registry returns the profiles the checker knows.
func (c *Checker) Registry() *Registry {
	return c.registry
}

// ExpressionStats returns statistics of the compiled expression cache.
func (c *Checker) ExpressionStats() cache.Stats {
	return c.exprs.Stats()
}

// Check validates the root resource, contained resources and bundle
// entries against their declared profiles.
func (c *Checker) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	var msgs epadoc.Messages
	for _, r := range doc.Resources() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, url := range r.Profiles {
			sd, ok := c.registry.Get(url)
			if !ok {
				loc := fmt.Sprintf("%s.meta.profile[%d]", r.Path, i)
				if c.errorForUnknown {
					msgs.Error(loc, "Profile reference '%s' has not been checked because it is unknown", url)
				} else {
					msgs.Warning(loc, "Profile reference '%s' has not been checked because it is unknown", url)
				}
				continue
			}
			if sd.Type != r.Kind {
				msgs.Error(r.Path, "The profile '%s' applies to %s resources, not %s", url, sd.Type, describe(r.Kind))
				continue
			}
			if err := c.checkResource(ctx, &msgs, sd, r); err != nil {
				return nil, err
			}
		}
	}
	return msgs.List(), nil
}

func describe(kind string) string {
	if kind == "" {
		return "a resource without a type"
	}
	return kind
}

func (c *Checker) checkResource(ctx context.Context, msgs *epadoc.Messages, sd *StructureDefinition, r model.Resource) error {
	w := &walk{checker: c, ctx: ctx, msgs: msgs, sd: sd}
	if err := w.object(r.Data, sd.Type, r.Path); err != nil {
		return err
	}
	c.checkInvariants(msgs, sd, r)
	return nil
}

type walk struct {
	checker *Checker
	ctx     context.Context
	msgs    *epadoc.Messages
	sd      *StructureDefinition
}

// object checks the children of obj described by the elements below
// sdPath. loc is the location of obj in the document.
func (w *walk) object(obj map[string]any, sdPath, loc string) error {
	for _, el := range w.sd.Children(sdPath) {
		keys := w.present(obj, el, loc)

		count := 0
		for _, key := range keys {
			count += len(model.List(obj[key]))
		}
		if count < el.Min {
			w.msgs.Error(loc+"."+el.Name(), "%s: minimum required = %d, but only found %d (from %s)",
				el.Path, el.Min, count, w.sd.URL)
		}
		if limit := el.MaxCount(); limit >= 0 && count > limit {
			w.msgs.Error(loc+"."+el.Name(), "%s: max allowed = %d, but found %d (from %s)",
				el.Path, limit, count, w.sd.URL)
		}

		for _, key := range keys {
			value := obj[key]
			items, isArray := value.([]any)
			if !isArray {
				items = []any{value}
			}
			for i, item := range items {
				itemLoc := loc + "." + key
				if isArray {
					itemLoc = fmt.Sprintf("%s[%d]", itemLoc, i)
				}
				if err := w.value(el, item, itemLoc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// present returns the keys of obj that carry el, reporting choice variants
// the profile does not allow.
func (w *walk) present(obj map[string]any, el *Element, loc string) []string {
	if !el.IsChoice() {
		if _, ok := obj[el.Name()]; ok {
			return []string{el.Name()}
		}
		return nil
	}

	base := strings.TrimSuffix(el.Name(), "[x]")
	var keys []string
	for key := range obj {
		suffix, ok := strings.CutPrefix(key, base)
		if !ok || suffix == "" || !unicode.IsUpper(rune(suffix[0])) {
			continue
		}
		if len(el.Types) > 0 && !allowed(el.Types, suffix) {
			w.msgs.Error(loc+"."+key, "Type '%s' is not allowed for %s by the profile %s (allowed: %s)",
				suffix, el.Path, w.sd.URL, strings.Join(el.Types, ", "))
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func allowed(types []string, suffix string) bool {
	for _, t := range types {
		if strings.EqualFold(t, suffix) {
			return true
		}
	}
	return false
}

func (w *walk) value(el *Element, v any, loc string) error {
	if el.Fixed != nil {
		if msg, bad := el.Fixed.Violation(v); bad {
			w.msgs.Error(loc, "%s", msg)
		}
	}
	if el.Pattern != nil {
		if msg, bad := el.Pattern.Violation(v); bad {
			w.msgs.Error(loc, "%s", msg)
		}
	}
	if el.Binding != nil {
		if err := w.binding(el.Binding, v, loc); err != nil {
			return err
		}
	}
	if obj, ok := v.(map[string]any); ok {
		return w.object(obj, el.Path, loc)
	}
	return nil
}

func (w *walk) binding(b *Binding, v any, loc string) error {
	ts := w.checker.terminology
	if ts == nil {
		return nil
	}
	var severity epadoc.Severity
	var clause string
	switch b.Strength {
	case StrengthRequired:
		severity, clause = epadoc.SeverityError, "and a code is required from this value set"
	case StrengthExtensible:
		if !w.checker.extensibleWarnings {
			return nil
		}
		severity, clause = epadoc.SeverityWarning, "and a code should come from this value set unless it has no suitable code"
	default:
		return nil
	}

	switch x := v.(type) {
	case string:
		ok, checked, err := w.validate(ts, "", x, b.ValueSet)
		if err != nil || !checked || ok {
			return err
		}
		w.msgs.Add(severity, loc, "The value provided ('%s') is not in the value set '%s', %s", x, b.ValueSet, clause)

	case map[string]any:
		if _, isConcept := x["coding"]; isConcept {
			var codes []string
			anyChecked := false
			for _, item := range model.List(x["coding"]) {
				coding, _ := item.(map[string]any)
				system, code := model.Str(coding, "system"), model.Str(coding, "code")
				if code == "" {
					continue
				}
				ok, checked, err := w.validate(ts, system, code, b.ValueSet)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
				anyChecked = anyChecked || checked
				codes = append(codes, system+"#"+code)
			}
			if anyChecked {
				w.msgs.Add(severity, loc, "None of the codings provided are in the value set '%s', %s (codes = %s)",
					b.ValueSet, clause, strings.Join(codes, ", "))
			}
			return nil
		}
		system, code := model.Str(x, "system"), model.Str(x, "code")
		if code == "" {
			return nil
		}
		ok, checked, err := w.validate(ts, system, code, b.ValueSet)
		if err != nil || !checked || ok {
			return err
		}
		w.msgs.Add(severity, loc, "The Coding provided (%s#%s) is not in the value set '%s', %s", system, code, b.ValueSet, clause)
	}
	return nil
}

// validate reports whether code is in valueSet. checked is false when the
// terminology cannot decide.
func (w *walk) validate(ts service.CodeValidator, system, code, valueSet string) (ok, checked bool, err error) {
	result, err := ts.ValidateCode(w.ctx, system, code, valueSet)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrNotSupported) {
			return false, false, nil
		}
		return false, false, err
	}
	return result.Valid, true, nil
}

// checkInvariants evaluates the FHIRPath constraints declared on the
// resource root.
func (c *Checker) checkInvariants(msgs *epadoc.Messages, sd *StructureDefinition, r model.Resource) {
	root := sd.Root()
	if root == nil || len(root.Constraints) == 0 {
		return
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		msgs.Warning(r.Path, "Unable to evaluate the invariants of %s: %v", sd.URL, err)
		return
	}

	for _, con := range root.Constraints {
		if con.Expression == "" {
			continue
		}
		cached := c.exprs.GetOrSet(con.Expression, func() compiled {
			expr, err := fhirpath.Compile(con.Expression)
			return compiled{expr: expr, err: err}
		})
		if cached.err != nil {
			msgs.Warning(r.Path, "Unable to compile constraint %s: %v", con.Key, cached.err)
			continue
		}
		result, err := cached.expr.Evaluate(data)
		if err != nil {
			msgs.Warning(r.Path, "Unable to evaluate constraint %s: %v", con.Key, err)
			continue
		}
		if passed(result) {
			continue
		}
		if con.Severity == "error" {
			msgs.Error(r.Path, "Constraint failed: %s: '%s' (defined in %s)", con.Key, con.Human, sd.URL)
		} else {
			msgs.Warning(r.Path, "Constraint failed: %s: '%s' (defined in %s)", con.Key, con.Human, sd.URL)
		}
	}
}

// passed reads a constraint result: an empty collection passes, a single
// boolean is its value, anything else passes.
func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
