package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const testManifest = `{"name":"example.profiles","version":"1.2.0","fhirVersions":["4.0.1"]}`

func testFiles() map[string]string {
	return map[string]string{
		"package/package.json": testManifest,
		"package/StructureDefinition-b.json": `{"resourceType":"StructureDefinition","id":"b",` +
			`"url":"https://example.org/StructureDefinition/b"}`,
		"package/StructureDefinition-a.json": `{"resourceType":"StructureDefinition","id":"a",` +
			`"url":"https://example.org/StructureDefinition/a"}`,
		"package/CodeSystem-x.json":    `{"resourceType":"CodeSystem","id":"x","url":"https://example.org/CodeSystem/x"}`,
		"package/.index.json":          `{"index-version":1}`,
		"package/notes.txt":            "ignored",
		"package/broken.json":          `{"resourceType":`,
		"package/example/Patient.json": `{"resourceType":"Patient","id":"p"}`,
	}
}

// buildTgz writes files into an in-memory gzipped tar archive.
func buildTgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// writeCache unpacks files under "<dir>/<name>#<version>/".
func writeCache(t *testing.T, dir string, ref PackageRef, files map[string]string) {
	t.Helper()
	root := filepath.Join(dir, ref.String())
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDefaultPackagePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	want := filepath.Join(home, ".fhir", "packages")
	if got := DefaultPackagePath(); got != want {
		t.Errorf("DefaultPackagePath() = %q; want %q", got, want)
	}
}

func TestPackageRef(t *testing.T) {
	tests := []struct {
		spec string
		want PackageRef
	}{
		{"de.gematik.epa-medication#3.1.0", PackageRef{Name: "de.gematik.epa-medication", Version: "3.1.0"}},
		{"package-without-version", PackageRef{Name: "package-without-version"}},
	}

	for _, tt := range tests {
		if got := ParsePackageRef(tt.spec); got != tt.want {
			t.Errorf("ParsePackageRef(%q) = %v; want %v", tt.spec, got, tt.want)
		}
	}

	ref := PackageRef{Name: "hl7.fhir.r4.core", Version: "4.0.1"}
	if ref.String() != "hl7.fhir.r4.core#4.0.1" {
		t.Errorf("String() = %q", ref.String())
	}
}

func TestLoadFromTgzData(t *testing.T) {
	l := NewLoader(t.TempDir())
	pkg, err := l.LoadFromTgzData(buildTgz(t, testFiles()))
	if err != nil {
		t.Fatalf("LoadFromTgzData() error = %v", err)
	}

	if pkg.Name != "example.profiles" || pkg.Version != "1.2.0" {
		t.Errorf("identity = %s; want example.profiles#1.2.0", pkg.Ref())
	}
	if pkg.FHIRVersion != "4.0.1" {
		t.Errorf("FHIRVersion = %q; want 4.0.1", pkg.FHIRVersion)
	}
	if pkg.Len() != 3 {
		t.Errorf("Len() = %d; want 3 (index, broken, non-json and example files skipped)", pkg.Len())
	}

	sds := pkg.OfType("StructureDefinition")
	if len(sds) != 2 {
		t.Fatalf("OfType(StructureDefinition) = %d; want 2", len(sds))
	}
	if !bytes.Contains(sds[0], []byte(`"id":"a"`)) {
		t.Errorf("OfType() not sorted by file name: %s", sds[0])
	}

	if _, ok := pkg.Find("https://example.org/StructureDefinition/a|1.2.0"); !ok {
		t.Error("Find() should ignore a |version suffix")
	}
	if _, ok := pkg.Find("CodeSystem/x"); !ok {
		t.Error("Find(CodeSystem/x) not found")
	}
	if _, ok := pkg.Find("Patient/p"); ok {
		t.Error("resources outside package/ should be ignored")
	}
}

func TestLoadFromTgzData_Errors(t *testing.T) {
	l := NewLoader(t.TempDir())

	if _, err := l.LoadFromTgzData([]byte("not gzip")); err == nil {
		t.Error("LoadFromTgzData(garbage) should fail")
	}

	files := testFiles()
	delete(files, "package/package.json")
	if _, err := l.LoadFromTgzData(buildTgz(t, files)); err == nil {
		t.Error("LoadFromTgzData() without manifest should fail")
	}
}

func TestLoadPackage_Cache(t *testing.T) {
	dir := t.TempDir()
	ref := PackageRef{Name: "example.profiles", Version: "1.2.0"}
	writeCache(t, dir, ref, testFiles())

	l := NewLoader(dir)
	pkg, err := l.LoadPackageRef(ref)
	if err != nil {
		t.Fatalf("LoadPackageRef() error = %v", err)
	}
	if len(pkg.OfType("CodeSystem")) != 1 {
		t.Errorf("OfType(CodeSystem) = %d; want 1", len(pkg.OfType("CodeSystem")))
	}

	list, err := l.ListPackages()
	if err != nil {
		t.Fatalf("ListPackages() error = %v", err)
	}
	if len(list) != 1 || list[0] != ref.String() {
		t.Errorf("ListPackages() = %v; want [%s]", list, ref)
	}

	if _, err := l.LoadPackage("missing", "0.0.1"); err == nil {
		t.Error("LoadPackage(missing) should fail")
	}
}

func TestLoad_SourceOrder(t *testing.T) {
	ref := PackageRef{Name: "example.profiles", Version: "1.2.0"}
	data := buildTgz(t, testFiles())

	t.Run("data first", func(t *testing.T) {
		l := NewLoader(t.TempDir())
		pkg, err := l.Load(context.Background(), ref, Source{Data: data, File: "/does/not/exist.tgz"})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if pkg.Path != "<memory>" {
			t.Errorf("Path = %q; want <memory>", pkg.Path)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "p.tgz")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		pkg, err := NewLoader(t.TempDir()).Load(context.Background(), ref, Source{File: path})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if pkg.Path != path {
			t.Errorf("Path = %q; want %q", pkg.Path, path)
		}
	})

	t.Run("url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(data)
		}))
		defer srv.Close()

		pkg, err := NewLoader(t.TempDir()).Load(context.Background(), ref, Source{URL: srv.URL})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if pkg.Path != srv.URL {
			t.Errorf("Path = %q; want %q", pkg.Path, srv.URL)
		}
	})

	t.Run("identity mismatch", func(t *testing.T) {
		other := PackageRef{Name: "example.profiles", Version: "2.0.0"}
		_, err := NewLoader(t.TempDir()).Load(context.Background(), other, Source{Data: data})
		if !errors.Is(err, ErrPackageNotFound) {
			t.Errorf("Load() error = %v; want ErrPackageNotFound", err)
		}
	})

	t.Run("nothing available", func(t *testing.T) {
		_, err := NewLoader(t.TempDir()).Load(context.Background(), ref, Source{})
		if !errors.Is(err, ErrPackageNotFound) {
			t.Errorf("Load() error = %v; want ErrPackageNotFound", err)
		}
	})
}

func TestLoadFromURL_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewLoader(t.TempDir()).LoadFromURL(context.Background(), srv.URL); err == nil {
		t.Error("LoadFromURL() should fail on HTTP 404")
	}
}
