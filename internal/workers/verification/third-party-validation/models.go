package thirdpartyvalidation

import "license-verification/internal/models"

// Accepted application id keys in a validation message, in precedence order.
var applicationIDKeys = []string{"application_id", "uuid", "app_uuid"}

// Input is the Zeebe job payload.
type Input struct {
	Application models.ApplicationRef `json:"application"`
	Claim       models.ClaimFields    `json:"claim,omitempty"`
}

// Request is one validation call: the application and the fields posted to
// the validation service.
type Request struct {
	ApplicationID string
	Fields        map[string]string
}

// Message is the queue body: claim fields plus the application id.
type Message map[string]string

type Output struct {
	ApplicationID        string `json:"applicationId"`
	ThirdPartyValidation bool   `json:"thirdPartyValidation"`
	Proceed              bool   `json:"validationProceed"`
}

// response is the validation service reply. A missing result reads as false.
type response struct {
	Result *bool `json:"result"`
}
