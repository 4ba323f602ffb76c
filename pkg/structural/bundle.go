package structural

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/reference"
)

// checkBundle applies the Bundle invariants and, for document bundles, the
// document rules and reference integrity.
func checkBundle(msgs *epadoc.Messages, doc *model.Document) {
	tree := doc.Tree
	kind := model.Str(tree, "type")
	entries := model.List(tree["entry"])
	document := kind == model.BundleTypeDocument

	if _, has := tree["total"]; has && kind != "searchset" && kind != "history" {
		msgs.Error("Bundle", "total only when a search or history")
	}

	if document {
		checkDocumentHeader(msgs, tree)
		if len(entries) == 0 {
			msgs.Error("Bundle", "A document must have a Composition as the first resource")
		}
	}

	idx := reference.NewIndex(tree)
	for _, dup := range idx.Duplicates {
		msgs.Error("Bundle", "Duplicate fullUrl '%s': the fullUrl must be unique in a bundle", dup)
	}

	for i, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path := fmt.Sprintf("Bundle.entry[%d]", i)
		resource, _ := entry["resource"].(map[string]any)
		resourceKind := model.Str(resource, "resourceType")
		fullURL := model.Str(entry, "fullUrl")

		if document {
			switch {
			case i == 0 && resourceKind != "Composition":
				msgs.Error(path, "A document must have a Composition as the first resource, found %s", describeKind(resourceKind))
			case i > 0 && resourceKind == "Composition":
				msgs.Error(path+".resource", "A document must have only one Composition, found another at entry %d", i)
			}
			if fullURL == "" {
				msgs.Error(path, "Entries in a document must have a fullUrl")
			}
		}
		if fullURL != "" {
			checkFullURL(msgs, path, fullURL, resource)
		}
		if resource != nil {
			checkReferences(msgs, idx, resource, path+".resource", document)
		}
	}
}

func checkDocumentHeader(msgs *epadoc.Messages, tree map[string]any) {
	ident, _ := tree["identifier"].(map[string]any)
	if model.Str(ident, "system") == "" || model.Str(ident, "value") == "" {
		msgs.Error("Bundle", "A document must have an identifier with a system and a value")
	}
	if model.Str(tree, "timestamp") == "" {
		msgs.Error("Bundle", "A document must have a date (Bundle.timestamp)")
	}
}

// checkFullURL checks that an absolute RESTful fullUrl ends in the resource id.
func checkFullURL(msgs *epadoc.Messages, path, fullURL string, resource map[string]any) {
	if reference.Classify(fullURL) != reference.FormAbsolute {
		return
	}
	id := model.Str(resource, "id")
	if id == "" {
		return
	}
	if urlID := reference.IDFromURL(fullURL); urlID != id {
		msgs.Error(path+".fullUrl", "The fullUrl '%s' does not match the resource id '%s'", fullURL, id)
	}
}

// checkReferences resolves every reference inside one entry resource.
// urn:uuid and urn:oid references only have meaning inside the bundle and
// must resolve; other unresolved references in a document are reported as
// warnings.
func checkReferences(msgs *epadoc.Messages, idx *reference.Index, resource map[string]any, path string, document bool) {
	walkReferences(resource, path, func(p, ref string) {
		if ref == "" || strings.HasPrefix(ref, "#") {
			return
		}
		if _, ok := idx.Resolve(ref); ok {
			return
		}
		switch {
		case strings.HasPrefix(ref, "urn:uuid:"), strings.HasPrefix(ref, "urn:oid:"):
			msgs.Error(p, "Unable to resolve reference '%s': no entry in the bundle has this fullUrl", ref)
		case document:
			msgs.Warning(p, "Reference '%s' cannot be resolved within the bundle", ref)
		}
	})
}

// walkReferences calls fn for every Reference.reference string under v, in
// sorted key order.
func walkReferences(v any, path string, fn func(path, ref string)) {
	switch x := v.(type) {
	case map[string]any:
		if ref, ok := x["reference"].(string); ok {
			fn(path+".reference", ref)
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			if k != "reference" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkReferences(x[k], path+"."+k, fn)
		}
	case []any:
		for i, item := range x {
			walkReferences(item, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}

func describeKind(kind string) string {
	if kind == "" {
		return "no resource"
	}
	return kind
}
