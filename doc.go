// Package epadoc builds FHIR R4 document bundles and validates clinical
// documents against the gematik ePA medication profiles.
//
// The root package holds the values shared by every component: diagnostic
// messages, the validation response, engine options and metrics.
//
// # Quick Start
//
//	import (
//	    "github.com/gofhir/epadoc/builder"
//	    "github.com/gofhir/epadoc/engine"
//	)
//
//	bundle := builder.New().Build(builder.MedicationDocument)
//
//	v, err := engine.New(ctx, epadoc.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	resp := v.ValidateBundle(ctx, bundle)
//	fmt.Println(resp)
//
// # Validation chain
//
// The engine runs a fixed, ordered list of checkers over every document:
//
//   - Profile package: cardinality, fixed/pattern values, required bindings
//     and FHIRPath invariants from the ePA StructureDefinitions
//   - Structural: base resource rules and document-bundle rules
//   - In-memory terminology: codes from loaded CodeSystems and ValueSets
//   - Common code systems: LOINC, PZN, UCUM and FHIR core code systems
//
// Results of each checker are memoized per document content for the
// lifetime of the process.
//
// # Verdict
//
// A Response is valid iff none of its messages is FATAL or ERROR. Parsing
// failures and checker faults are reported as ERROR messages; validation
// never returns an error.
package epadoc
