// Package terminology validates the codes of a document.
//
// Memory holds code systems and value sets loaded from the embedded seed,
// from rule packages or from JSON. It implements service.CodeValidator and
// expands compose includes lazily (include-all, is-a, descendent-of, regex
// and = filters).
//
// Two checkers are built on top of it:
//   - Checker validates every coding against the code systems in a Memory.
//     Unknown codes are errors for complete code systems and warnings for
//     fragments.
//   - Common checks well-known systems by rule: LOINC and PZN check digits,
//     UCUM units, ISO 3166 countries, BCP-47 tags, MIME types, German
//     identifier formats and the required bindings of the base resources.
//
// Example usage:
//
//	m := terminology.NewMemory()
//	if _, err := m.LoadSeed(); err != nil {
//		return err
//	}
//	result, err := m.ValidateCode(ctx, "", "final", "http://hl7.org/fhir/ValueSet/observation-status")
package terminology
