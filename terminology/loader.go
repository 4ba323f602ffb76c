package terminology

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/epadoc/pkg/loader"
	"github.com/gofhir/epadoc/specs"
)

// LoadStats counts what a load added.
type LoadStats struct {
	CodeSystemsLoaded int
	ValueSetsLoaded   int
	Errors            int
}

func (s *LoadStats) add(other LoadStats) {
	s.CodeSystemsLoaded += other.CodeSystemsLoaded
	s.ValueSetsLoaded += other.ValueSetsLoaded
	s.Errors += other.Errors
}

// LoadSeed loads the embedded seed code systems and value sets. Code systems
// are loaded first so that value set includes can be expanded.
func (m *Memory) LoadSeed() (LoadStats, error) {
	var stats LoadStats
	for _, name := range []string{specs.SeedFiles.CodeSystems, specs.SeedFiles.ValueSets} {
		data, err := specs.ReadFile(name)
		if err != nil {
			return stats, err
		}
		loaded, err := m.LoadJSON(data)
		stats.add(loaded)
		if err != nil {
			return stats, fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return stats, nil
}

// LoadPackage loads every CodeSystem and ValueSet shipped in a rule package.
// Resources that fail to decode are counted, not returned.
func (m *Memory) LoadPackage(pkg *loader.Package) LoadStats {
	var stats LoadStats
	for _, data := range pkg.OfType("CodeSystem") {
		if err := m.loadCodeSystemJSON(data); err != nil {
			stats.Errors++
			continue
		}
		stats.CodeSystemsLoaded++
	}
	for _, data := range pkg.OfType("ValueSet") {
		if err := m.loadValueSetJSON(data); err != nil {
			stats.Errors++
			continue
		}
		stats.ValueSetsLoaded++
	}
	return stats
}

// LoadJSON loads a CodeSystem, a ValueSet, or a Bundle of them.
func (m *Memory) LoadJSON(data []byte) (LoadStats, error) {
	var stats LoadStats

	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return stats, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "Bundle":
		var b struct {
			Entry []struct {
				Resource json.RawMessage `json:"resource"`
			} `json:"entry"`
		}
		if err := json.Unmarshal(data, &b); err != nil {
			return stats, fmt.Errorf("failed to parse Bundle: %w", err)
		}
		// Code systems first; value sets may include them.
		var valueSets []json.RawMessage
		for _, entry := range b.Entry {
			var kind struct {
				ResourceType string `json:"resourceType"`
			}
			if err := json.Unmarshal(entry.Resource, &kind); err != nil {
				stats.Errors++
				continue
			}
			switch kind.ResourceType {
			case "CodeSystem":
				if err := m.loadCodeSystemJSON(entry.Resource); err != nil {
					stats.Errors++
					continue
				}
				stats.CodeSystemsLoaded++
			case "ValueSet":
				valueSets = append(valueSets, entry.Resource)
			}
		}
		for _, raw := range valueSets {
			if err := m.loadValueSetJSON(raw); err != nil {
				stats.Errors++
				continue
			}
			stats.ValueSetsLoaded++
		}

	case "CodeSystem":
		if err := m.loadCodeSystemJSON(data); err != nil {
			stats.Errors++
			return stats, err
		}
		stats.CodeSystemsLoaded++

	case "ValueSet":
		if err := m.loadValueSetJSON(data); err != nil {
			stats.Errors++
			return stats, err
		}
		stats.ValueSetsLoaded++

	default:
		return stats, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}

	return stats, nil
}

func (m *Memory) loadCodeSystemJSON(data []byte) error {
	var cs r4.CodeSystem
	if err := json.Unmarshal(data, &cs); err != nil {
		return fmt.Errorf("failed to parse CodeSystem: %w", err)
	}
	var mode struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &mode); err != nil {
		return fmt.Errorf("failed to parse CodeSystem: %w", err)
	}
	return m.LoadCodeSystem(&cs, mode.Content)
}

func (m *Memory) loadValueSetJSON(data []byte) error {
	var vs r4.ValueSet
	if err := json.Unmarshal(data, &vs); err != nil {
		return fmt.Errorf("failed to parse ValueSet: %w", err)
	}
	return m.LoadValueSet(&vs)
}
