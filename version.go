package epadoc

import (
	"github.com/gofhir/epadoc/pkg/epa"
	"github.com/gofhir/epadoc/pkg/loader"
)

// Version is the release of this module.
const Version = "0.3.0"

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// R4 is FHIR Release 4 (4.0.1), the only release the EPA medication
// profiles are published for.
const R4 FHIRVersion = "R4"

// String returns the version name.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	return v == R4
}

// Release returns the full release number used in package manifests
// and StructureDefinition.fhirVersion.
func (v FHIRVersion) Release() string {
	if v == R4 {
		return "4.0.1"
	}
	return ""
}

// DefaultPackage returns the profile package the validator loads when no
// other package is configured.
func DefaultPackage() loader.PackageRef {
	return loader.PackageRef{Name: epa.PackageID, Version: epa.PackageVersion}
}
