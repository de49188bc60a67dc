package models

import (
	"path"
	"strings"
)

// Application record attribute names.
const (
	FieldApplicationID = "APP_UUID"

	FieldDocumentNumber = "DOCUMENT_NUMBER"
	FieldFirstName      = "FIRST_NAME"
	FieldLastName       = "LAST_NAME"
	FieldDateOfBirth    = "DATE_OF_BIRTH"
	FieldAddress        = "ADDRESS"
	FieldState          = "STATE_IN_ADDRESS"
	FieldCity           = "CITY_IN_ADDRESS"
	FieldZipCode        = "ZIP_CODE_IN_ADDRESS"

	FieldFaceMatch            = "LICENSE_SELFIE_MATCH"
	FieldDetailsMatch         = "LICENSE_DETAILS_MATCH"
	FieldThirdPartyValidation = "LICENSE_VALIDATION"

	FieldAbortedStage = "ABORTED_STAGE"
	FieldAbortReason  = "ABORT_REASON"
)

// ClaimFieldNames is the claim schema. It doubles as the allow-list of
// extracted identity document fields.
var ClaimFieldNames = []string{
	FieldDocumentNumber,
	FieldFirstName,
	FieldLastName,
	FieldDateOfBirth,
	FieldAddress,
	FieldState,
	FieldCity,
	FieldZipCode,
}

// VerdictFields are written by exactly one stage each.
var VerdictFields = []string{FieldFaceMatch, FieldDetailsMatch, FieldThirdPartyValidation}

// IsClaimField reports whether name belongs to the claim schema.
func IsClaimField(name string) bool {
	for _, f := range ClaimFieldNames {
		if f == name {
			return true
		}
	}
	return false
}

// IsVerdictField reports whether name is one of the three verdict attributes.
func IsVerdictField(name string) bool {
	for _, f := range VerdictFields {
		if f == name {
			return true
		}
	}
	return false
}

// ClaimFields holds the claimed personal details keyed by attribute name.
type ClaimFields map[string]string

// Restrict returns a copy holding only claim schema keys.
func (c ClaimFields) Restrict() ClaimFields {
	out := make(ClaimFields, len(ClaimFieldNames))
	for _, name := range ClaimFieldNames {
		if v, ok := c[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Missing returns the claim schema keys absent from c.
func (c ClaimFields) Missing() []string {
	var missing []string
	for _, name := range ClaimFieldNames {
		if _, ok := c[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// DocumentNumber is the driver license id from the claim.
func (c ClaimFields) DocumentNumber() string {
	return c[FieldDocumentNumber]
}

// Status is derived from which verdicts are present, never stored.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusClaimRecorded     Status = "CLAIM_RECORDED"
	StatusFaceChecked       Status = "FACE_CHECKED"
	StatusDetailsChecked    Status = "DETAILS_CHECKED"
	StatusThirdPartyChecked Status = "THIRD_PARTY_CHECKED"
	StatusDone              Status = "DONE"
	StatusAborted           Status = "ABORTED"
)

// Record is one application's verification state. A nil verdict means the
// stage has not produced one; it is not a failure.
type Record struct {
	ApplicationID        string      `json:"applicationId"`
	Claim                ClaimFields `json:"claim,omitempty"`
	FaceMatch            *bool       `json:"faceMatch,omitempty"`
	DetailsMatch         *bool       `json:"detailsMatch,omitempty"`
	ThirdPartyValidation *bool       `json:"thirdPartyValidation,omitempty"`
	AbortedStage         string      `json:"abortedStage,omitempty"`
	AbortReason          string      `json:"abortReason,omitempty"`
}

// Verdict returns the verdict stored under one of the verdict attribute names.
func (r *Record) Verdict(field string) *bool {
	switch field {
	case FieldFaceMatch:
		return r.FaceMatch
	case FieldDetailsMatch:
		return r.DetailsMatch
	case FieldThirdPartyValidation:
		return r.ThirdPartyValidation
	}
	return nil
}

// SetVerdict stores v under one of the verdict attribute names.
func (r *Record) SetVerdict(field string, v bool) {
	switch field {
	case FieldFaceMatch:
		r.FaceMatch = Bool(v)
	case FieldDetailsMatch:
		r.DetailsMatch = Bool(v)
	case FieldThirdPartyValidation:
		r.ThirdPartyValidation = Bool(v)
	}
}

// Status derives the lifecycle state.
func (r *Record) Status() Status {
	switch {
	case r.AbortedStage != "":
		return StatusAborted
	case r.FaceMatch != nil && r.DetailsMatch != nil && r.ThirdPartyValidation != nil:
		return StatusDone
	case r.ThirdPartyValidation != nil:
		return StatusThirdPartyChecked
	case r.DetailsMatch != nil:
		return StatusDetailsChecked
	case r.FaceMatch != nil:
		return StatusFaceChecked
	case len(r.Claim) > 0:
		return StatusClaimRecorded
	default:
		return StatusPending
	}
}

// Halted reports whether a recorded verdict is false, which stops the pipeline.
func (r *Record) Halted() bool {
	for _, v := range []*bool{r.FaceMatch, r.DetailsMatch, r.ThirdPartyValidation} {
		if v != nil && !*v {
			return true
		}
	}
	return false
}

// Verified reports whether all three verdicts are present and true.
func (r *Record) Verified() bool {
	return isTrue(r.FaceMatch) && isTrue(r.DetailsMatch) && isTrue(r.ThirdPartyValidation)
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

func isTrue(v *bool) bool {
	return v != nil && *v
}

// ApplicationIDFromKey derives the application identifier from an archive
// object key: the base name without its extension.
func ApplicationIDFromKey(key string) string {
	base := path.Base(key)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Member kinds staged out of an archive.
const (
	MemberSelfie  = "selfie"
	MemberLicense = "license"
	MemberDetails = "details"
)

// MemberName returns the conventional staged member name for an application.
// ext includes the leading dot.
func MemberName(applicationID, kind, ext string) string {
	return applicationID + "_" + kind + ext
}
