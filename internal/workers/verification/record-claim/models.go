package recordclaim

import "license-verification/internal/models"

type Input struct {
	Detail      models.StorageDetail  `json:"detail"`
	Application models.ApplicationRef `json:"application"`
	// DetailsKey overrides the conventional unzipped/<id>_details.csv key.
	DetailsKey string `json:"detailsKey,omitempty"`
}

type Output struct {
	Application     models.ApplicationRef `json:"application"`
	Claim           models.ClaimFields    `json:"claim"`
	DriverLicenseID string                `json:"driverLicenseId"`
}
