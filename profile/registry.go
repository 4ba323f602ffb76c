package profile

import (
	"sort"
	"strings"
	"sync"

	"github.com/gofhir/epadoc/pkg/loader"
)

// Registry holds StructureDefinitions by canonical URL. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byURL map[string]*StructureDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byURL: make(map[string]*StructureDefinition)}
}

// Add registers sd, replacing any definition with the same URL.
func (r *Registry) Add(sd *StructureDefinition) {
	r.mu.Lock()
	r.byURL[sd.URL] = sd
	r.mu.Unlock()
}

// LoadPackage registers every StructureDefinition of a rule package and
// returns how many were loaded and how many failed to decode.
func (r *Registry) LoadPackage(pkg *loader.Package) (loaded, failed int) {
	for _, data := range pkg.OfType("StructureDefinition") {
		sd, err := Parse(data)
		if err != nil {
			failed++
			continue
		}
		r.Add(sd)
		loaded++
	}
	return loaded, failed
}

// Get returns the definition for a canonical URL. A "|version" suffix is
// ignored.
func (r *Registry) Get(url string) (*StructureDefinition, bool) {
	if i := strings.LastIndex(url, "|"); i != -1 {
		url = url[:i]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sd, ok := r.byURL[url]
	return sd, ok
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byURL)
}

// URLs returns the registered URLs in sorted order.
func (r *Registry) URLs() []string {
	r.mu.RLock()
	urls := make([]string, 0, len(r.byURL))
	for url := range r.byURL {
		urls = append(urls, url)
	}
	r.mu.RUnlock()
	sort.Strings(urls)
	return urls
}
