package unziparchive

import "license-verification/internal/models"

type Input struct {
	Detail models.StorageDetail `json:"detail"`
}

type Output struct {
	Application models.ApplicationRef `json:"application"`
	SelfieKey   string                `json:"selfieKey"`
	LicenseKey  string                `json:"licenseKey"`
	DetailsKey  string                `json:"detailsKey"`
}
