package preload

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

// HTTPHandler exposes preload scheduling over REST.
type HTTPHandler struct {
	scheduler *Scheduler
	logger    zerolog.Logger
}

// NewHTTPHandler constructs a preload HTTP handler.
func NewHTTPHandler(scheduler *Scheduler, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "preload_http").Logger(),
	}
}

// HandlePreload handles POST /api/preload-questions
func (h *HTTPHandler) HandlePreload(w http.ResponseWriter, r *http.Request) {
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

	outcome, err := h.scheduler.Schedule(req)
	switch {
	case errors.Is(err, llm.ErrUnsupportedModel):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeUnsupportedModel, err.Error())
		return
	case errors.Is(err, ErrThrottled):
		httperrors.RespondError(w, http.StatusTooManyRequests, httperrors.ErrCodePreloadThrottled, "Preload requested too soon for this game")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("session", req.Session).Msg("schedule preload failed")
		httperrors.RespondInternalError(w, "Could not schedule preload")
		return
	}

	status := http.StatusAccepted
	if outcome == OutcomeInProgress {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"gameId": req.Session,
		"status": outcome,
	})
}
