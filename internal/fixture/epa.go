package fixture

import (
	"embed"
	"path"
)

//go:embed epa/*.json
var epaFiles embed.FS

// EPAPackage returns a reduced de.gematik.epa-medication 3.1.0 package as
// .tgz bytes. It carries the bundle, statement and medication profiles and
// one code system with its value set.
func EPAPackage() []byte {
	entries, err := epaFiles.ReadDir("epa")
	if err != nil {
		panic(err)
	}
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := epaFiles.ReadFile(path.Join("epa", e.Name()))
		if err != nil {
			panic(err)
		}
		files["package/"+e.Name()] = string(data)
	}
	return Tgz(files)
}
