package builder

import "fmt"

// DefectKind classifies a broken assembly invariant.
type DefectKind int

// Defect kinds.
const (
	DefectDanglingReference DefectKind = iota + 1
	DefectEmptySection
	DefectCompositionMisplaced
	DefectMissingField
	DefectDuplicateRole
	DefectIdentityMismatch
)

func (k DefectKind) String() string {
	switch k {
	case DefectDanglingReference:
		return "dangling reference"
	case DefectEmptySection:
		return "empty section"
	case DefectCompositionMisplaced:
		return "composition misplaced"
	case DefectMissingField:
		return "missing field"
	case DefectDuplicateRole:
		return "duplicate role"
	case DefectIdentityMismatch:
		return "identity mismatch"
	default:
		return fmt.Sprintf("DefectKind(%d)", int(k))
	}
}

// DefectError is the panic value raised when a template cannot be assembled
// into a consistent bundle. It signals a programming error in the template,
// never bad input, and is not returned as an error.
type DefectError struct {
	Kind     DefectKind
	Template string
	Detail   string
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("builder: %s: %s: %s", e.Template, e.Kind, e.Detail)
}

func defect(kind DefectKind, template, format string, args ...any) {
	panic(&DefectError{Kind: kind, Template: template, Detail: fmt.Sprintf(format, args...)})
}
