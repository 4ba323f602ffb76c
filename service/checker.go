// Package service defines the checker capability shared by every validation
// component, plus the ordered chain, the caching decorator and the small
// terminology interfaces the checkers depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/model"
)

// ErrNotFound is returned when a resource cannot be found.
var ErrNotFound = errors.New("resource not found")

// ErrNotSupported is returned when an operation is not supported.
var ErrNotSupported = errors.New("operation not supported")

// Checker evaluates a parsed document and returns its findings. A returned
// error is a fault of the checker itself, not a finding.
type Checker interface {
	Name() string
	Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error)
}

// FaultError is a checker panic converted to an error.
type FaultError struct {
	Checker string
	Value   any
	Stack   []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// SafeCheck runs c and converts a panic into a *FaultError.
func SafeCheck(ctx context.Context, c Checker, doc *model.Document) (msgs []epadoc.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msgs = nil
			err = &FaultError{Checker: c.Name(), Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Check(ctx, doc)
}

// Null is a checker that never reports anything. It stands in for a checker
// whose rules could not be loaded.
type Null struct {
	Label string
}

// Name returns the label of the checker it replaces.
func (n Null) Name() string {
	if n.Label == "" {
		return "null"
	}
	return n.Label
}

// Check returns no messages.
func (Null) Check(context.Context, *model.Document) ([]epadoc.Message, error) {
	return nil, nil
}

// Func adapts a function to the Checker interface.
type Func struct {
	Label string
	Fn    func(ctx context.Context, doc *model.Document) ([]epadoc.Message, error)
}

// Name returns the label.
func (f Func) Name() string { return f.Label }

// Check calls Fn.
func (f Func) Check(ctx context.Context, doc *model.Document) ([]epadoc.Message, error) {
	return f.Fn(ctx, doc)
}
