package question

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/llm"
	httperrors "github.com/gokatarajesh/trivia-forge/pkg/http/errors"
)

// HTTPHandler exposes the question coordinator over REST.
type HTTPHandler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHTTPHandler constructs a question HTTP handler.
func NewHTTPHandler(svc *Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "question_http").Logger(),
	}
}

// HandleGenerate handles POST /api/generate-question. A degraded
// placeholder is still a well-formed record but is sent with 503.
func (h *HTTPHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		httperrors.RespondStructError(w, err)
		return
	}

	res, err := h.svc.NextQuestion(r.Context(), req)
	if err != nil {
		if errors.Is(err, llm.ErrUnsupportedModel) {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeUnsupportedModel, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("session", req.Session).Msg("next question failed")
		httperrors.RespondInternalError(w, "Could not produce a question")
		return
	}

	status := http.StatusOK
	if res.Degraded {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, res)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
