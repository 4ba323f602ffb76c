package service

import (
	"context"
	"errors"
)

// ValidateCodeResult holds the result of code validation.
type ValidateCodeResult struct {
	Valid   bool
	Message string
	Display string
	Code    string
	System  string

	// Strict is true when the code system is complete, so an unknown code
	// is an error rather than a warning.
	Strict bool
}

// CodeValidator validates codes against code systems and value sets. An
// empty valueSetURL validates against the code system only.
type CodeValidator interface {
	ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error)
}

// TerminologyChain tries multiple code validators in order.
type TerminologyChain struct {
	services []CodeValidator
}

// NewTerminologyChain creates a new terminology chain.
func NewTerminologyChain(services ...CodeValidator) *TerminologyChain {
	return &TerminologyChain{services: services}
}

// ValidateCode returns the first answer. Validators that do not know the
// system or value set (ErrNotSupported, ErrNotFound) are skipped.
func (c *TerminologyChain) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error) {
	for _, svc := range c.services {
		result, err := svc.ValidateCode(ctx, system, code, valueSetURL)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotSupported) && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotSupported
}

// Add appends a validator to the chain.
func (c *TerminologyChain) Add(service CodeValidator) {
	c.services = append(c.services, service)
}

// NullTerminologyService accepts every code.
type NullTerminologyService struct{}

// ValidateCode always returns valid.
func (NullTerminologyService) ValidateCode(_ context.Context, system, code, _ string) (*ValidateCodeResult, error) {
	return &ValidateCodeResult{Valid: true, System: system, Code: code}, nil
}
