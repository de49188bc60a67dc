package comparefaces

import "license-verification/internal/models"

type Input struct {
	Detail      models.StorageDetail  `json:"detail"`
	Application models.ApplicationRef `json:"application"`
	LicenseKey  string                `json:"licenseKey,omitempty"`
	SelfieKey   string                `json:"selfieKey,omitempty"`
}

// Output is the step result. Proceed mirrors FaceMatch for the gateway that
// follows this stage. Its variable name is stage-specific because both
// comparisons may complete into the same process scope.
type Output struct {
	ApplicationID string  `json:"applicationId"`
	FaceMatch     bool    `json:"faceMatch"`
	Similarity    float64 `json:"similarity"`
	Proceed       bool    `json:"faceProceed"`
}
