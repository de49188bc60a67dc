package stage

import (
	"encoding/json"
	"fmt"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/common/validation"
)

// Decode validates raw workflow variables against schemas and unmarshals them
// into dst. Failures are INVALID_INPUT errors.
func Decode(raw string, dst interface{}, schemas ...map[string]interface{}) error {
	if len(schemas) > 0 {
		res, err := validation.ValidateAll(raw, schemas...)
		if err != nil {
			return apperrors.NewInvalidInputError(err.Error())
		}
		if !res.Valid {
			return apperrors.NewInvalidInputError(res.Error())
		}
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err))
	}
	return nil
}
