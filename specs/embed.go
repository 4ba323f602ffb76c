// Package specs embeds the seed terminology shipped with the validator:
// the FHIR core code systems and value sets used by clinical and
// medication documents, and the ISO 3166 country codes.
//
// Usage:
//
//	data, err := specs.ReadFile(specs.SeedFiles.CodeSystems)
package specs

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
)

//go:embed seed/*.json
var seed embed.FS

const dir = "seed"

// SeedFiles names the embedded seed files.
var SeedFiles = struct {
	CodeSystems string
	ValueSets   string
	Countries   string
}{
	CodeSystems: "codesystems.json",
	ValueSets:   "valuesets.json",
	Countries:   "iso3166.json",
}

// FS returns the seed files rooted at their directory.
func FS() fs.FS {
	sub, err := fs.Sub(seed, dir)
	if err != nil {
		panic(err) // the directory is embedded at compile time
	}
	return sub
}

// ListFiles returns the names of the embedded seed files.
func ListFiles() ([]string, error) {
	entries, err := seed.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// ReadFile reads one seed file.
func ReadFile(name string) ([]byte, error) {
	p := path.Join(dir, name)
	data, err := seed.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// HasFile reports whether a seed file exists.
func HasFile(name string) bool {
	_, err := seed.ReadFile(path.Join(dir, name))
	return err == nil
}
