package terminology

import (
	"context"
	"errors"
	"strings"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/service"
)

// CheckerName is the name of the in-memory terminology checker.
const CheckerName = "terminology"

// Checker validates every coding of a document against the code systems
// held by a Memory. Codings from systems it does not hold are left to other
// checkers.
type Checker struct {
	memory *Memory
}

// NewChecker creates a checker over m.
func NewChecker(m *Memory) *Checker {
	return &Checker{memory: m}
}

// Name returns "terminology".
func (c *Checker) Name() string {
	return CheckerName
}

// Memory returns the underlying store.
func (c *Checker) Memory() *Memory {
	return c.memory
}

// Check validates the codings of doc. Unknown codes are errors for complete
// code systems and warnings otherwise.
func (c *Checker) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	var msgs epadoc.Messages
	var fault error

	walkCodings(doc, func(path, system, code string, obj map[string]any) {
		if fault != nil {
			return
		}
		result, err := c.memory.ValidateCode(ctx, system, code, "")
		if err != nil {
			if !errors.Is(err, service.ErrNotFound) && !errors.Is(err, service.ErrNotSupported) {
				fault = err
			}
			return
		}

		if !result.Valid {
			if result.Strict {
				msgs.Error(path+".code", "%s", result.Message)
			} else {
				msgs.Warning(path+".code", "%s (the CodeSystem is not complete, so the code may still be valid)", result.Message)
			}
			return
		}

		display, _ := obj["display"].(string)
		if display != "" && result.Display != "" && !strings.EqualFold(strings.TrimSpace(display), result.Display) {
			msgs.Warning(path+".display", "Wrong Display Name '%s' for %s#%s. Valid display is '%s'",
				display, system, code, result.Display)
		}
	})

	if fault != nil {
		return nil, fault
	}
	return msgs.List(), nil
}
