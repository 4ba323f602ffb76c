// Package fixture builds in-memory rule packages for tests and demos.
package fixture

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"sort"
)

// Tgz writes files into a gzipped tar archive, in name order.
func Tgz(files map[string]string) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		// Writes to a bytes.Buffer cannot fail.
		_ = tw.WriteHeader(hdr)
		_, _ = tw.Write([]byte(content))
	}
	_ = tw.Close()
	_ = gz.Close()
	return buf.Bytes()
}
