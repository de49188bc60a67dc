package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schemas for the workflow payloads the stages accept.
var (
	// ArchiveEventSchema matches the storage event detail that starts a run.
	ArchiveEventSchema = map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"detail"},
		"properties": map[string]interface{}{
			"detail": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"bucket", "object"},
				"properties": map[string]interface{}{
					"bucket": requiredString("name"),
					"object": requiredString("key"),
				},
			},
		},
	}

	// ApplicationSchema requires application.app_uuid.
	ApplicationSchema = map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"application"},
		"properties": map[string]interface{}{
			"application": requiredString("app_uuid"),
			"claim": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": map[string]interface{}{"type": "string"},
			},
		},
	}

	// ClaimMessageSchema matches a third-party validation request: claim
	// fields plus the application id under one of its accepted keys.
	ClaimMessageSchema = map[string]interface{}{
		"type": "object",
		"anyOf": []interface{}{
			map[string]interface{}{"required": []interface{}{"application_id"}},
			map[string]interface{}{"required": []interface{}{"uuid"}},
			map[string]interface{}{"required": []interface{}{"app_uuid"}},
		},
		"additionalProperties": map[string]interface{}{"type": "string"},
	}
)

func requiredString(name string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{name},
		"properties": map[string]interface{}{
			name: map[string]interface{}{"type": "string", "minLength": 1},
		},
	}
}

// Validate checks document against schema. Both may be Go values or raw JSON
// ([]byte or string).
func Validate(schema, document interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(loader(schema), loader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// ValidateAll runs every schema and merges the results.
func ValidateAll(document interface{}, schemas ...map[string]interface{}) (*ValidationResult, error) {
	merged := &ValidationResult{Valid: true}
	for _, schema := range schemas {
		res, err := Validate(schema, document)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			merged.Valid = false
			merged.Errors = append(merged.Errors, res.Errors...)
		}
	}
	return merged, nil
}

func loader(v interface{}) gojsonschema.JSONLoader {
	switch t := v.(type) {
	case []byte:
		return gojsonschema.NewBytesLoader(t)
	case string:
		return gojsonschema.NewStringLoader(t)
	default:
		return gojsonschema.NewGoLoader(t)
	}
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Error joins the messages, for use as error details.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}
