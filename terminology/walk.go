package terminology

import (
	"fmt"
	"sort"

	"github.com/gofhir/epadoc/model"
)

// walkObjects calls fn for every JSON object under v, depth first in sorted
// key order.
func walkObjects(v any, path string, fn func(path string, obj map[string]any)) {
	switch x := v.(type) {
	case map[string]any:
		fn(path, x)
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkObjects(x[k], join(path, k), fn)
		}
	case []any:
		for i, item := range x {
			walkObjects(item, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// coding returns the system and code of obj when it carries both as strings
// (a Coding, or a Quantity with a coded unit).
func coding(obj map[string]any) (system, code string, ok bool) {
	system, okSystem := obj["system"].(string)
	code, okCode := obj["code"].(string)
	return system, code, okSystem && okCode
}

// walkCodings calls fn for every coded object of the document.
func walkCodings(doc *model.Document, fn func(path, system, code string, obj map[string]any)) {
	walkObjects(doc.Tree, doc.Kind(), func(path string, obj map[string]any) {
		if system, code, ok := coding(obj); ok {
			fn(path, system, code, obj)
		}
	})
}
