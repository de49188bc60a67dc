package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Status(t *testing.T) {
	claim := ClaimFields{FieldDocumentNumber: "D123"}

	tests := []struct {
		name   string
		record Record
		want   Status
	}{
		{"empty", Record{ApplicationID: "a"}, StatusPending},
		{"claim only", Record{Claim: claim}, StatusClaimRecorded},
		{"face checked", Record{Claim: claim, FaceMatch: Bool(true)}, StatusFaceChecked},
		{"face failed", Record{Claim: claim, FaceMatch: Bool(false)}, StatusFaceChecked},
		{"details checked", Record{Claim: claim, FaceMatch: Bool(true), DetailsMatch: Bool(true)}, StatusDetailsChecked},
		{"third party only", Record{Claim: claim, ThirdPartyValidation: Bool(true)}, StatusThirdPartyChecked},
		{"done", Record{Claim: claim, FaceMatch: Bool(true), DetailsMatch: Bool(false), ThirdPartyValidation: Bool(true)}, StatusDone},
		{"aborted wins", Record{Claim: claim, FaceMatch: Bool(true), AbortedStage: "compare-details"}, StatusAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Status())
		})
	}
}

func TestRecord_AbsentVerdictIsNotFalse(t *testing.T) {
	r := Record{Claim: ClaimFields{FieldFirstName: "JANE"}, FaceMatch: Bool(true)}

	assert.Nil(t, r.DetailsMatch)
	assert.False(t, r.Halted())
	assert.False(t, r.Verified())

	r.SetVerdict(FieldDetailsMatch, false)
	assert.True(t, r.Halted())
	assert.Equal(t, false, *r.Verdict(FieldDetailsMatch))
}

func TestRecord_Verified(t *testing.T) {
	r := Record{}
	for _, f := range VerdictFields {
		r.SetVerdict(f, true)
	}
	assert.True(t, r.Verified())
	assert.Equal(t, StatusDone, r.Status())
}

func TestClaimFields_RestrictAndMissing(t *testing.T) {
	c := ClaimFields{
		FieldDocumentNumber: "D123",
		FieldFirstName:      "JANE",
		"FAVOURITE_COLOUR":  "blue",
	}

	restricted := c.Restrict()
	assert.Len(t, restricted, 2)
	assert.NotContains(t, restricted, "FAVOURITE_COLOUR")
	assert.Equal(t, "D123", restricted.DocumentNumber())

	missing := c.Missing()
	assert.Len(t, missing, len(ClaimFieldNames)-2)
	assert.Contains(t, missing, FieldZipCode)
}

func TestApplicationIDFromKey(t *testing.T) {
	assert.Equal(t, "abc123", ApplicationIDFromKey("abc123.zip"))
	assert.Equal(t, "abc123", ApplicationIDFromKey("uploads/2024/abc123.zip"))
	assert.Equal(t, "abc123", ApplicationIDFromKey("abc123"))
	assert.Equal(t, "abc123_selfie.jpg", MemberName("abc123", MemberSelfie, ".jpg"))
}
