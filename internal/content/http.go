package content

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/llm"
	httperrors "github.com/gokatarajesh/trivia-forge/pkg/http/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// HTTPHandlers exposes the content endpoints.
type HTTPHandlers struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for content endpoints.
func NewHTTPHandlers(svc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		svc:    svc,
		logger: logger.With().Str("component", "content_http").Logger(),
	}
}

// GenerateCategories handles POST /api/generate-categories
func (h *HTTPHandlers) GenerateCategories(w http.ResponseWriter, r *http.Request) {
	var req CategoriesRequest
	if !h.decode(w, r, &req) {
		return
	}
	categories, err := h.svc.GenerateCategories(r.Context(), req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// MutateCategory handles POST /api/mutate-category
func (h *HTTPHandlers) MutateCategory(w http.ResponseWriter, r *http.Request) {
	var req MutationRequest
	if !h.decode(w, r, &req) {
		return
	}
	choices, err := h.svc.MutateCategory(r.Context(), req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"choices": choices})
}

// ExplainIncorrect handles POST /api/explain-incorrect
func (h *HTTPHandlers) ExplainIncorrect(w http.ResponseWriter, r *http.Request) {
	var req ExplanationRequest
	if !h.decode(w, r, &req) {
		return
	}
	explanation, err := h.svc.ExplainIncorrect(r.Context(), req)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, explanation)
}

func (h *HTTPHandlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		httperrors.RespondMethodNotAllowed(w, http.MethodPost)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httperrors.RespondStructError(w, err)
		return false
	}
	return true
}

func (h *HTTPHandlers) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrUnsupportedModel):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeUnsupportedModel, err.Error())
	case errors.Is(err, ErrNotEnoughCategories):
		httperrors.RespondUpstreamError(w, httperrors.ErrCodeNotEnoughCategories, err.Error())
	case errors.Is(err, ErrNoChoices):
		httperrors.RespondUpstreamError(w, httperrors.ErrCodeNoChoices, err.Error())
	case errors.Is(err, llm.ErrGenerationFailed), errors.Is(err, ErrUnexpectedResponse):
		httperrors.RespondUpstreamError(w, httperrors.ErrCodeUpstreamError, "Model did not return usable content")
	default:
		h.logger.Error().Err(err).Msg("content request failed")
		httperrors.RespondInternalError(w, "Could not generate content")
	}
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
