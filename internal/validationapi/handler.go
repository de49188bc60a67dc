// Package validationapi is a stand-in for the third-party license validation
// service, used in development and end-to-end environments.
package validationapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"license-verification/internal/common/logger"
	"license-verification/internal/models"
)

const overrideKey = "validation_override"

type Handler struct {
	denied map[string]struct{}
	logger logger.Logger
}

// NewHandler answers false for every document number in deny and true for
// the rest, unless the request carries validation_override.
func NewHandler(deny []string, log logger.Logger) *Handler {
	denied := make(map[string]struct{}, len(deny))
	for _, d := range deny {
		if d = strings.TrimSpace(d); d != "" {
			denied[d] = struct{}{}
		}
	}
	return &Handler{denied: denied, logger: log}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Post("/validate", h.handleValidate)
	return r
}

type validateResponse struct {
	Result bool `json:"result"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "request body must be a JSON object"})
		return
	}

	result := h.decide(body)
	h.logger.Info("validation answered", map[string]interface{}{
		"requestId": middleware.GetReqID(r.Context()),
		"result":    result,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(validateResponse{Result: result})
}

func (h *Handler) decide(body map[string]interface{}) bool {
	if override, ok := body[overrideKey].(bool); ok {
		return override
	}
	if number, ok := body[models.FieldDocumentNumber].(string); ok {
		if _, denied := h.denied[number]; denied {
			return false
		}
	}
	return true
}
