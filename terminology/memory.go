package terminology

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/epadoc/service"
)

// Content modes of a CodeSystem. Only complete code systems reject unknown
// codes; the others may be missing codes that are valid.
const (
	ContentComplete   = "complete"
	ContentFragment   = "fragment"
	ContentExample    = "example"
	ContentNotPresent = "not-present"
)

// Memory validates codes against code systems and value sets held in memory.
// It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	valueSets   map[string]*valueSet
	codeSystems map[string]*codeSystem
}

type valueSet struct {
	url        string
	codes      map[string]map[string]codeEntry // system -> code -> entry
	filters    []pendingFilter
	expanded   bool
	incomplete bool // some include could not be expanded
}

type codeSystem struct {
	url      string
	content  string
	codes    map[string]codeEntry
	parents  map[string][]string // code -> subsumedBy
	children map[string][]string
}

type codeEntry struct {
	code    string
	display string
	system  string
}

type pendingFilter struct {
	system   string
	property string
	op       string
	value    string
}

// NewMemory creates an empty terminology store.
func NewMemory() *Memory {
	return &Memory{
		valueSets:   make(map[string]*valueSet),
		codeSystems: make(map[string]*codeSystem),
	}
}

// LoadCodeSystem adds a CodeSystem. content is its content mode; an empty
// mode is treated as complete.
func (m *Memory) LoadCodeSystem(cs *r4.CodeSystem, content string) error {
	if cs == nil || cs.Url == nil {
		return fmt.Errorf("codesystem is nil or has no URL")
	}
	if content == "" {
		content = ContentComplete
	}

	data := &codeSystem{
		url:      *cs.Url,
		content:  content,
		codes:    make(map[string]codeEntry),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
	collectConcepts(cs.Concept, data, "")
	for code, parents := range data.parents {
		for _, parent := range parents {
			data.children[parent] = append(data.children[parent], code)
		}
	}

	m.mu.Lock()
	m.codeSystems[data.url] = data
	m.mu.Unlock()
	return nil
}

// collectConcepts records concepts and their hierarchy. Nesting and the
// subsumedBy property both define parents.
func collectConcepts(concepts []r4.CodeSystemConcept, cs *codeSystem, parent string) {
	for i := range concepts {
		concept := &concepts[i]
		if concept.Code == nil {
			continue
		}
		code := *concept.Code
		display := ""
		if concept.Display != nil {
			display = *concept.Display
		}
		cs.codes[code] = codeEntry{code: code, display: display, system: cs.url}

		if parent != "" {
			cs.parents[code] = append(cs.parents[code], parent)
		}
		for _, prop := range concept.Property {
			if prop.Code != nil && *prop.Code == "subsumedBy" && prop.ValueCode != nil {
				cs.parents[code] = append(cs.parents[code], *prop.ValueCode)
			}
		}
		if len(concept.Concept) > 0 {
			collectConcepts(concept.Concept, cs, code)
		}
	}
}

// LoadValueSet adds a ValueSet. An expansion is used as is; otherwise the
// compose includes are expanded on first use.
func (m *Memory) LoadValueSet(vs *r4.ValueSet) error {
	if vs == nil || vs.Url == nil {
		return fmt.Errorf("valueset is nil or has no URL")
	}

	data := &valueSet{
		url:   *vs.Url,
		codes: make(map[string]map[string]codeEntry),
	}
	if vs.Expansion != nil {
		for i := range vs.Expansion.Contains {
			addContains(&vs.Expansion.Contains[i], data)
		}
		data.expanded = true
	}
	if vs.Compose != nil && !data.expanded {
		addCompose(vs.Compose, data)
	}

	m.mu.Lock()
	m.valueSets[data.url] = data
	m.mu.Unlock()
	return nil
}

func addContains(contains *r4.ValueSetExpansionContains, vs *valueSet) {
	if contains.Code != nil && contains.System != nil {
		display := ""
		if contains.Display != nil {
			display = *contains.Display
		}
		vs.add(codeEntry{code: *contains.Code, display: display, system: *contains.System})
	}
	for i := range contains.Contains {
		addContains(&contains.Contains[i], vs)
	}
}

func addCompose(compose *r4.ValueSetCompose, vs *valueSet) {
	for i := range compose.Include {
		include := &compose.Include[i]
		if include.System == nil {
			// value set imports are not resolved
			vs.incomplete = true
			continue
		}
		system := *include.System

		for j := range include.Concept {
			concept := &include.Concept[j]
			if concept.Code == nil {
				continue
			}
			display := ""
			if concept.Display != nil {
				display = *concept.Display
			}
			vs.add(codeEntry{code: *concept.Code, display: display, system: system})
		}

		for _, filter := range include.Filter {
			if filter.Property == nil || filter.Op == nil || filter.Value == nil {
				continue
			}
			vs.filters = append(vs.filters, pendingFilter{
				system:   system,
				property: *filter.Property,
				op:       string(*filter.Op),
				value:    *filter.Value,
			})
		}

		if len(include.Concept) == 0 && len(include.Filter) == 0 {
			vs.filters = append(vs.filters, pendingFilter{system: system, op: "include-all"})
		}
	}
}

func (vs *valueSet) add(e codeEntry) {
	if vs.codes[e.system] == nil {
		vs.codes[e.system] = make(map[string]codeEntry)
	}
	vs.codes[e.system][e.code] = e
}

// ValidateCode implements service.CodeValidator. Unknown code systems and
// value sets are reported as service.ErrNotFound so that a chain can ask the
// next validator.
func (m *Memory) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*service.ValidateCodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if code == "" {
		return &service.ValidateCodeResult{Valid: false, Message: "code is empty", System: system}, nil
	}
	if valueSetURL != "" {
		return m.validateInValueSet(stripVersion(valueSetURL), system, code)
	}
	if system == "" {
		return nil, fmt.Errorf("%w: no system or value set given", service.ErrNotSupported)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cs, ok := m.codeSystems[stripVersion(system)]
	if !ok {
		return nil, fmt.Errorf("%w: codesystem %s", service.ErrNotFound, system)
	}
	strict := cs.content == ContentComplete
	if entry, ok := cs.codes[code]; ok {
		return &service.ValidateCodeResult{Valid: true, Display: entry.display, Code: code, System: system, Strict: strict}, nil
	}
	return &service.ValidateCodeResult{
		Valid:   false,
		Message: fmt.Sprintf("Unknown code '%s' in the CodeSystem '%s'", code, system),
		Code:    code,
		System:  system,
		Strict:  strict,
	}, nil
}

func (m *Memory) validateInValueSet(url, system, code string) (*service.ValidateCodeResult, error) {
	if err := m.ensureExpanded(url); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := m.valueSets[url]
	for s, codes := range vs.codes {
		if system != "" && s != system {
			continue
		}
		if entry, ok := codes[code]; ok {
			return &service.ValidateCodeResult{Valid: true, Display: entry.display, Code: code, System: s, Strict: true}, nil
		}
	}
	if vs.incomplete {
		return nil, fmt.Errorf("%w: value set %s is not fully expanded", service.ErrNotSupported, url)
	}

	msg := fmt.Sprintf("The code '%s' is not in the value set '%s'", code, url)
	if system != "" {
		msg = fmt.Sprintf("The code '%s#%s' is not in the value set '%s'", system, code, url)
	}
	return &service.ValidateCodeResult{Valid: false, Message: msg, Code: code, System: system, Strict: true}, nil
}

// ensureExpanded expands pending compose filters against the loaded code
// systems. Includes over code systems that are not loaded, or that are not
// complete, leave the value set incomplete.
func (m *Memory) ensureExpanded(url string) error {
	m.mu.RLock()
	vs, ok := m.valueSets[url]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("%w: valueset %s", service.ErrNotFound, url)
	}
	done := vs.expanded
	m.mu.RUnlock()
	if done {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if vs.expanded {
		return nil
	}

	for _, f := range vs.filters {
		cs, ok := m.codeSystems[f.system]
		if !ok {
			vs.incomplete = true
			continue
		}
		if cs.content != ContentComplete {
			vs.incomplete = true
		}

		switch {
		case f.op == "include-all":
			for _, entry := range cs.codes {
				vs.add(entry)
			}
		case f.property == "concept" && (f.op == "is-a" || f.op == "descendent-of"):
			for _, code := range descendants(cs, f.value, f.op == "is-a") {
				vs.add(cs.codes[code])
			}
		case f.property == "code" && f.op == "regex":
			re, err := regexp.Compile("^(?:" + f.value + ")$")
			if err != nil {
				vs.incomplete = true
				continue
			}
			for code, entry := range cs.codes {
				if re.MatchString(code) {
					vs.add(entry)
				}
			}
		case f.property == "code" && f.op == "=":
			if entry, ok := cs.codes[f.value]; ok {
				vs.add(entry)
			}
		default:
			vs.incomplete = true
		}
	}
	vs.expanded = true
	return nil
}

// descendants returns the codes below start. Abstract codes (leading "_")
// are skipped.
func descendants(cs *codeSystem, start string, includeSelf bool) []string {
	var out []string
	seen := make(map[string]bool)

	var walk func(code string)
	walk = func(code string) {
		if seen[code] {
			return
		}
		seen[code] = true
		if (includeSelf || code != start) && !strings.HasPrefix(code, "_") {
			if _, ok := cs.codes[code]; ok {
				out = append(out, code)
			}
		}
		for _, child := range cs.children[code] {
			walk(child)
		}
	}
	walk(start)
	return out
}

// Lookup returns the display of a code in a loaded code system.
func (m *Memory) Lookup(system, code string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.codeSystems[stripVersion(system)]
	if !ok {
		return "", false
	}
	entry, ok := cs.codes[code]
	return entry.display, ok
}

// HasCodeSystem reports whether a code system is loaded.
func (m *Memory) HasCodeSystem(url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.codeSystems[stripVersion(url)]
	return ok
}

// CountCodeSystems returns the number of loaded code systems.
func (m *Memory) CountCodeSystems() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codeSystems)
}

// CountValueSets returns the number of loaded value sets.
func (m *Memory) CountValueSets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.valueSets)
}

var _ service.CodeValidator = (*Memory)(nil)

// stripVersion removes a "|version" suffix from a canonical URL.
func stripVersion(url string) string {
	if i := strings.LastIndex(url, "|"); i != -1 {
		return url[:i]
	}
	return url
}
