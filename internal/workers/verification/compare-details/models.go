package comparedetails

import "license-verification/internal/models"

type Input struct {
	Detail      models.StorageDetail  `json:"detail"`
	Application models.ApplicationRef `json:"application"`
	LicenseKey  string                `json:"licenseKey,omitempty"`
	// Claim is optional; the stored record is used when it is empty.
	Claim models.ClaimFields `json:"claim,omitempty"`
}

type Output struct {
	ApplicationID    string   `json:"applicationId"`
	DetailsMatch     bool     `json:"detailsMatch"`
	MismatchedFields []string `json:"mismatchedFields"`
	Proceed          bool     `json:"detailsProceed"`
}
