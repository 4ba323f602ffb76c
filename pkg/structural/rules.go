package structural

import "strings"

// Element is the base definition of one element of a resource or backbone
// element. Max 0 means unbounded.
type Element struct {
	Name     string
	Type     Type
	Choices  []Type // for name[x] elements
	Min      int
	Max      int
	Children []Element
}

// IsChoice reports whether the element is a name[x] element.
func (e Element) IsChoice() bool {
	return strings.HasSuffix(e.Name, "[x]")
}

// Repeats reports whether the element may occur more than once.
func (e Element) Repeats() bool {
	return e.Max != 1
}

// Rule is the base definition of one resource kind. Only the listed
// elements are checked; elements not listed are accepted.
type Rule struct {
	Kind     string
	Elements []Element
}

func opt(name string, t Type, children ...Element) Element {
	return Element{Name: name, Type: t, Max: 1, Children: children}
}

func req(name string, t Type, children ...Element) Element {
	return Element{Name: name, Type: t, Min: 1, Max: 1, Children: children}
}

func many(name string, t Type, children ...Element) Element {
	return Element{Name: name, Type: t, Children: children}
}

func some(name string, t Type, children ...Element) Element {
	return Element{Name: name, Type: t, Min: 1, Children: children}
}

func choice(name string, min int, types ...Type) Element {
	return Element{Name: name + "[x]", Choices: types, Min: min, Max: 1}
}

// Elements shared by every resource.
var resourceElements = []Element{
	opt("id", TypeID),
	opt("meta", TypeComplex,
		opt("versionId", TypeID),
		opt("lastUpdated", TypeInstant),
		opt("source", TypeURI),
		many("profile", TypeCanonical),
		many("security", TypeCoding),
		many("tag", TypeCoding),
	),
	opt("implicitRules", TypeURI),
	opt("language", TypeCode),
}

// Elements shared by every domain resource.
var domainElements = []Element{
	opt("text", TypeComplex,
		req("status", TypeCode),
		req("div", TypeString),
	),
	many("contained", TypeResource),
	many("extension", TypeComplex),
	many("modifierExtension", TypeComplex),
}

// BaseRules holds the base definitions of the resource kinds used in
// clinical and medication documents.
var BaseRules = map[string]Rule{}

func define(kind string, domain bool, elements ...Element) {
	all := append([]Element(nil), resourceElements...)
	if domain {
		all = append(all, domainElements...)
	}
	BaseRules[kind] = Rule{Kind: kind, Elements: append(all, elements...)}
}

func init() {
	define("Bundle", false,
		opt("identifier", TypeIdentifier),
		req("type", TypeCode),
		opt("timestamp", TypeInstant),
		opt("total", TypeUnsignedInt),
		many("link", TypeBackbone,
			req("relation", TypeString),
			req("url", TypeURI),
		),
		many("entry", TypeBackbone,
			opt("fullUrl", TypeURI),
			opt("resource", TypeResource),
			opt("search", TypeBackbone),
			opt("request", TypeBackbone,
				req("method", TypeCode),
				req("url", TypeURI),
			),
			opt("response", TypeBackbone,
				req("status", TypeString),
			),
		),
		opt("signature", TypeComplex),
	)

	define("Composition", true,
		opt("identifier", TypeIdentifier),
		req("status", TypeCode),
		req("type", TypeCodeableConcept),
		many("category", TypeCodeableConcept),
		opt("subject", TypeReference),
		opt("encounter", TypeReference),
		req("date", TypeDateTime),
		some("author", TypeReference),
		req("title", TypeString),
		opt("confidentiality", TypeCode),
		many("attester", TypeBackbone,
			req("mode", TypeCode),
			opt("time", TypeDateTime),
			opt("party", TypeReference),
		),
		opt("custodian", TypeReference),
		many("relatesTo", TypeBackbone,
			req("code", TypeCode),
			choice("target", 1, TypeIdentifier, TypeReference),
		),
		many("event", TypeBackbone,
			many("code", TypeCodeableConcept),
			opt("period", TypePeriod),
			many("detail", TypeReference),
		),
		many("section", TypeBackbone,
			opt("title", TypeString),
			opt("code", TypeCodeableConcept),
			many("author", TypeReference),
			opt("focus", TypeReference),
			opt("text", TypeComplex),
			opt("mode", TypeCode),
			opt("orderedBy", TypeCodeableConcept),
			many("entry", TypeReference),
			opt("emptyReason", TypeCodeableConcept),
			many("section", TypeBackbone),
		),
	)

	define("Patient", true,
		many("identifier", TypeIdentifier),
		opt("active", TypeBoolean),
		many("name", TypeHumanName),
		many("telecom", TypeComplex),
		opt("gender", TypeCode),
		opt("birthDate", TypeDate),
		choice("deceased", 0, TypeBoolean, TypeDateTime),
		many("address", TypeComplex),
		opt("maritalStatus", TypeCodeableConcept),
		choice("multipleBirth", 0, TypeBoolean, TypeInteger),
		many("photo", TypeComplex),
		many("contact", TypeBackbone),
		many("communication", TypeBackbone,
			req("language", TypeCodeableConcept),
			opt("preferred", TypeBoolean),
		),
		many("generalPractitioner", TypeReference),
		opt("managingOrganization", TypeReference),
		many("link", TypeBackbone,
			req("other", TypeReference),
			req("type", TypeCode),
		),
	)

	define("Organization", true,
		many("identifier", TypeIdentifier),
		opt("active", TypeBoolean),
		many("type", TypeCodeableConcept),
		opt("name", TypeString),
		many("alias", TypeString),
		many("telecom", TypeComplex),
		many("address", TypeComplex),
		opt("partOf", TypeReference),
		many("contact", TypeBackbone),
		many("endpoint", TypeReference),
	)

	define("Practitioner", true,
		many("identifier", TypeIdentifier),
		opt("active", TypeBoolean),
		many("name", TypeHumanName),
		many("telecom", TypeComplex),
		many("address", TypeComplex),
		opt("gender", TypeCode),
		opt("birthDate", TypeDate),
		many("qualification", TypeBackbone,
			many("identifier", TypeIdentifier),
			req("code", TypeCodeableConcept),
		),
		many("communication", TypeCodeableConcept),
	)

	define("PractitionerRole", true,
		many("identifier", TypeIdentifier),
		opt("active", TypeBoolean),
		opt("period", TypePeriod),
		opt("practitioner", TypeReference),
		opt("organization", TypeReference),
		many("code", TypeCodeableConcept),
		many("specialty", TypeCodeableConcept),
		many("location", TypeReference),
		many("telecom", TypeComplex),
	)

	define("Observation", true,
		many("identifier", TypeIdentifier),
		many("basedOn", TypeReference),
		many("partOf", TypeReference),
		req("status", TypeCode),
		many("category", TypeCodeableConcept),
		req("code", TypeCodeableConcept),
		opt("subject", TypeReference),
		many("focus", TypeReference),
		opt("encounter", TypeReference),
		choice("effective", 0, TypeDateTime, TypePeriod, TypeComplex, TypeInstant),
		opt("issued", TypeInstant),
		many("performer", TypeReference),
		choice("value", 0, TypeQuantity, TypeCodeableConcept, TypeString, TypeBoolean, TypeInteger,
			TypeComplex, TypeTime, TypeDateTime, TypePeriod),
		opt("dataAbsentReason", TypeCodeableConcept),
		many("interpretation", TypeCodeableConcept),
		many("note", TypeComplex),
		opt("bodySite", TypeCodeableConcept),
		opt("method", TypeCodeableConcept),
		opt("specimen", TypeReference),
		opt("device", TypeReference),
		many("referenceRange", TypeBackbone),
		many("hasMember", TypeReference),
		many("derivedFrom", TypeReference),
		many("component", TypeBackbone,
			req("code", TypeCodeableConcept),
			choice("value", 0, TypeQuantity, TypeCodeableConcept, TypeString, TypeBoolean, TypeInteger,
				TypeComplex, TypeTime, TypeDateTime, TypePeriod),
			opt("dataAbsentReason", TypeCodeableConcept),
			many("interpretation", TypeCodeableConcept),
		),
	)

	define("Medication", true,
		many("identifier", TypeIdentifier),
		opt("code", TypeCodeableConcept),
		opt("status", TypeCode),
		opt("manufacturer", TypeReference),
		opt("form", TypeCodeableConcept),
		opt("amount", TypeComplex),
		many("ingredient", TypeBackbone,
			choice("item", 1, TypeCodeableConcept, TypeReference),
			opt("isActive", TypeBoolean),
			opt("strength", TypeComplex),
		),
		opt("batch", TypeBackbone,
			opt("lotNumber", TypeString),
			opt("expirationDate", TypeDateTime),
		),
	)

	define("MedicationStatement", true,
		many("identifier", TypeIdentifier),
		many("basedOn", TypeReference),
		many("partOf", TypeReference),
		req("status", TypeCode),
		many("statusReason", TypeCodeableConcept),
		opt("category", TypeCodeableConcept),
		choice("medication", 1, TypeCodeableConcept, TypeReference),
		req("subject", TypeReference),
		opt("context", TypeReference),
		choice("effective", 0, TypeDateTime, TypePeriod),
		opt("dateAsserted", TypeDateTime),
		opt("informationSource", TypeReference),
		many("derivedFrom", TypeReference),
		many("reasonCode", TypeCodeableConcept),
		many("reasonReference", TypeReference),
		many("note", TypeComplex),
		many("dosage", TypeComplex),
	)

	define("MedicationRequest", true,
		many("identifier", TypeIdentifier),
		req("status", TypeCode),
		req("intent", TypeCode),
		many("category", TypeCodeableConcept),
		opt("priority", TypeCode),
		choice("medication", 1, TypeCodeableConcept, TypeReference),
		req("subject", TypeReference),
		opt("encounter", TypeReference),
		opt("authoredOn", TypeDateTime),
		opt("requester", TypeReference),
		many("note", TypeComplex),
		many("dosageInstruction", TypeComplex),
		opt("dispenseRequest", TypeBackbone),
		opt("substitution", TypeBackbone),
	)

	define("MedicationDispense", true,
		many("identifier", TypeIdentifier),
		many("partOf", TypeReference),
		req("status", TypeCode),
		choice("medication", 1, TypeCodeableConcept, TypeReference),
		opt("subject", TypeReference),
		opt("context", TypeReference),
		many("performer", TypeBackbone,
			opt("function", TypeCodeableConcept),
			req("actor", TypeReference),
		),
		many("authorizingPrescription", TypeReference),
		opt("quantity", TypeQuantity),
		opt("whenPrepared", TypeDateTime),
		opt("whenHandedOver", TypeDateTime),
		many("note", TypeComplex),
		many("dosageInstruction", TypeComplex),
	)

	define("Condition", true,
		many("identifier", TypeIdentifier),
		opt("clinicalStatus", TypeCodeableConcept),
		opt("verificationStatus", TypeCodeableConcept),
		many("category", TypeCodeableConcept),
		opt("severity", TypeCodeableConcept),
		opt("code", TypeCodeableConcept),
		many("bodySite", TypeCodeableConcept),
		req("subject", TypeReference),
		opt("encounter", TypeReference),
		choice("onset", 0, TypeDateTime, TypeQuantity, TypePeriod, TypeComplex, TypeString),
		opt("recordedDate", TypeDateTime),
		opt("recorder", TypeReference),
		opt("asserter", TypeReference),
	)

	define("AllergyIntolerance", true,
		many("identifier", TypeIdentifier),
		opt("clinicalStatus", TypeCodeableConcept),
		opt("verificationStatus", TypeCodeableConcept),
		opt("type", TypeCode),
		many("category", TypeCode),
		opt("criticality", TypeCode),
		opt("code", TypeCodeableConcept),
		req("patient", TypeReference),
		opt("encounter", TypeReference),
		opt("recordedDate", TypeDateTime),
		many("reaction", TypeBackbone,
			many("manifestation", TypeCodeableConcept),
			opt("severity", TypeCode),
		),
	)

	define("Encounter", true,
		many("identifier", TypeIdentifier),
		req("status", TypeCode),
		req("class", TypeCoding),
		many("type", TypeCodeableConcept),
		opt("subject", TypeReference),
		opt("period", TypePeriod),
		opt("serviceProvider", TypeReference),
	)

	define("DocumentReference", true,
		opt("masterIdentifier", TypeIdentifier),
		many("identifier", TypeIdentifier),
		req("status", TypeCode),
		opt("type", TypeCodeableConcept),
		opt("subject", TypeReference),
		opt("date", TypeInstant),
		many("author", TypeReference),
		some("content", TypeBackbone,
			req("attachment", TypeComplex),
			opt("format", TypeCoding),
		),
	)

	define("Provenance", true,
		some("target", TypeReference),
		req("recorded", TypeInstant),
		some("agent", TypeBackbone,
			opt("type", TypeCodeableConcept),
			req("who", TypeReference),
			opt("onBehalfOf", TypeReference),
		),
	)

	define("Binary", false,
		req("contentType", TypeCode),
		opt("securityContext", TypeReference),
		opt("data", TypeBase64),
	)
}

// R4 resource types.
var resourceTypes = strings.Fields(`
Account ActivityDefinition AdverseEvent AllergyIntolerance Appointment AppointmentResponse
AuditEvent Basic Binary BiologicallyDerivedProduct BodyStructure Bundle CapabilityStatement
CarePlan CareTeam CatalogEntry ChargeItem ChargeItemDefinition Claim ClaimResponse
ClinicalImpression CodeSystem Communication CommunicationRequest CompartmentDefinition
Composition ConceptMap Condition Consent Contract Coverage CoverageEligibilityRequest
CoverageEligibilityResponse DetectedIssue Device DeviceDefinition DeviceMetric DeviceRequest
DeviceUseStatement DiagnosticReport DocumentManifest DocumentReference EffectEvidenceSynthesis
Encounter Endpoint EnrollmentRequest EnrollmentResponse EpisodeOfCare EventDefinition Evidence
EvidenceVariable ExampleScenario ExplanationOfBenefit FamilyMemberHistory Flag Goal
GraphDefinition Group GuidanceResponse HealthcareService ImagingStudy Immunization
ImmunizationEvaluation ImmunizationRecommendation ImplementationGuide InsurancePlan Invoice
Library Linkage List Location Measure MeasureReport Media Medication MedicationAdministration
MedicationDispense MedicationKnowledge MedicationRequest MedicationStatement MedicinalProduct
MedicinalProductAuthorization MedicinalProductContraindication MedicinalProductIndication
MedicinalProductIngredient MedicinalProductInteraction MedicinalProductManufactured
MedicinalProductPackaged MedicinalProductPharmaceutical MedicinalProductUndesirableEffect
MessageDefinition MessageHeader MolecularSequence NamingSystem NutritionOrder Observation
ObservationDefinition OperationDefinition OperationOutcome Organization OrganizationAffiliation
Parameters Patient PaymentNotice PaymentReconciliation Person PlanDefinition Practitioner
PractitionerRole Procedure Provenance Questionnaire QuestionnaireResponse RelatedPerson
RequestGroup ResearchDefinition ResearchElementDefinition ResearchStudy ResearchSubject
RiskAssessment RiskEvidenceSynthesis Schedule SearchParameter ServiceRequest Slot Specimen
SpecimenDefinition StructureDefinition StructureMap Subscription Substance
SubstanceNucleicAcid SubstancePolymer SubstanceProtein SubstanceReferenceInformation
SubstanceSourceMaterial SubstanceSpecification SupplyDelivery SupplyRequest Task
TerminologyCapabilities TestReport TestScript ValueSet VerificationResult VisionPrescription
`)

var knownTypes = func() map[string]bool {
	m := make(map[string]bool, len(resourceTypes))
	for _, t := range resourceTypes {
		m[t] = true
	}
	return m
}()

// IsResourceType reports whether kind is an R4 resource type.
func IsResourceType(kind string) bool {
	return knownTypes[kind]
}
