// Package epa holds the identifiers published by gematik for the ePA
// medication service (ePA 3.1.3, profile package 3.1.0).
package epa

// Profile package identity.
const (
	PackageID      = "de.gematik.epa-medication"
	PackageVersion = "3.1.0"
)

// BaseURL is the canonical prefix of every ePA medication StructureDefinition.
const BaseURL = "https://gematik.de/fhir/epa-medication/StructureDefinition/"

// Profile canonical URLs.
const (
	MedicationBundle           = BaseURL + "epa-medication-bundle"
	MedicationStatement        = BaseURL + "epa-medication-statement"
	Medication                 = BaseURL + "epa-medication"
	MedicationRequest          = BaseURL + "epa-medication-request"
	MedicationDispense         = BaseURL + "epa-medication-dispense"
	MedicationComposition      = BaseURL + "epa-medication-composition"
	MedicationOrganization     = BaseURL + "epa-medication-organization"
	MedicationPatient          = BaseURL + "epa-medication-patient"
	MedicationPractitioner     = BaseURL + "epa-medication-practitioner"
	MedicationPractitionerRole = BaseURL + "epa-medication-practitionerrole"
)

// Code systems and naming systems used in ePA medication documents.
const (
	SystemLOINC                       = "http://loinc.org"
	SystemUCUM                        = "http://unitsofmeasure.org"
	SystemPZN                         = "http://fhir.de/CodeSystem/ifa/pzn"
	SystemATC                         = "http://fhir.de/CodeSystem/bfarm/atc"
	SystemConfidentiality             = "http://terminology.hl7.org/CodeSystem/v3-Confidentiality"
	SystemMedicationStatementCategory = "http://terminology.hl7.org/CodeSystem/medication-statement-category"
	NamingKVID10                      = "http://fhir.de/sid/gkv/kvid-10"
	NamingPZN                         = "http://fhir.de/sid/pzn"
	NamingRFC3986                     = "urn:ietf:rfc:3986"
)

// Profiles lists every ePA medication profile URL.
func Profiles() []string {
	return []string{
		MedicationBundle,
		MedicationStatement,
		Medication,
		MedicationRequest,
		MedicationDispense,
		MedicationComposition,
		MedicationOrganization,
		MedicationPatient,
		MedicationPractitioner,
		MedicationPractitionerRole,
	}
}

// IsProfile reports whether url is one of the ePA medication profiles.
// A trailing "|version" is ignored.
func IsProfile(url string) bool {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '|' {
			url = url[:i]
			break
		}
	}
	for _, p := range Profiles() {
		if p == url {
			return true
		}
	}
	return false
}
