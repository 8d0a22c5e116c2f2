package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/trivia-forge/pkg/http/errors"
)

// PersistedTelemetry reads counters and audit entries kept across restarts.
type PersistedTelemetry interface {
	ModelStats(ctx context.Context) ([]ModelStats, error)
	PromptHistory(ctx context.Context, limit int) ([]AuditEntry, error)
}

// ArchiveCounter reports the size of the permanent question archive.
type ArchiveCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HTTPHandler exposes the model catalog and invocation telemetry.
type HTTPHandler struct {
	invoker   *Invoker
	persisted PersistedTelemetry
	archive   ArchiveCounter
	logger    zerolog.Logger
}

// NewHTTPHandler constructs the handler. persisted and archive may be nil.
func NewHTTPHandler(invoker *Invoker, persisted PersistedTelemetry, archive ArchiveCounter, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		invoker:   invoker,
		persisted: persisted,
		archive:   archive,
		logger:    logger.With().Str("component", "llm_http").Logger(),
	}
}

// HandleModels responds with the question models.
// Route: GET /api/models/questions?language=pl
func (h *HTTPHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	models := h.invoker.Catalog().All()
	if lang := r.URL.Query().Get("language"); lang != "" {
		models = h.invoker.Catalog().ForLanguage(lang)
	}
	writeJSON(w, map[string]interface{}{"models": models})
}

// HandleStats responds with per-model counters for this process and, when
// available, the persisted totals.
// Route: GET /api/stats
func (h *HTTPHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	ctx := r.Context()
	resp := map[string]interface{}{
		"models":      h.invoker.Stats().Snapshot(),
		"retrievedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if h.persisted != nil {
		if stats, err := h.persisted.ModelStats(ctx); err == nil {
			resp["persisted"] = stats
		} else {
			h.logger.Warn().Err(err).Msg("persisted stats fetch failed")
		}
	}
	if h.archive != nil {
		if n, err := h.archive.Count(ctx); err == nil {
			resp["archivedQuestions"] = n
		} else {
			h.logger.Warn().Err(err).Msg("archive count failed")
		}
	}
	writeJSON(w, resp)
}

// HandlePromptHistory responds with recent prompts and raw responses,
// newest first. After a restart the persisted trail is used.
// Route: GET /api/prompt-history?limit=20
func (h *HTTPHandler) HandlePromptHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	audit := h.invoker.Audit()
	limit := audit.Capacity()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	entries := audit.Entries()
	source := "memory"
	if len(entries) == 0 && h.persisted != nil {
		if stored, err := h.persisted.PromptHistory(r.Context(), limit); err == nil {
			entries, source = stored, "database"
		} else {
			h.logger.Warn().Err(err).Msg("persisted prompt history fetch failed")
		}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	writeJSON(w, map[string]interface{}{
		"entries": entries,
		"source":  source,
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
