package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
	"github.com/gokatarajesh/trivia-forge/internal/llm"
)

type statsStore interface {
	UpsertModelStat(ctx context.Context, arg sqlcgen.UpsertModelStatParams) error
	ListModelStats(ctx context.Context) ([]sqlcgen.ModelStat, error)
	InsertGenerationError(ctx context.Context, arg sqlcgen.InsertGenerationErrorParams) error
	InsertPromptAudit(ctx context.Context, arg sqlcgen.InsertPromptAuditParams) error
	TrimPromptAudit(ctx context.Context, limit int32) error
	ListPromptAudit(ctx context.Context, limit int32) ([]sqlcgen.PromptAudit, error)
}

// StatsRepository persists model counters, the error log and the prompt
// audit trail. It satisfies llm.Sink.
type StatsRepository struct {
	store         statsStore
	auditCapacity int32
}

var _ llm.Sink = (*StatsRepository)(nil)

func NewStatsRepository(store statsStore, auditCapacity int) *StatsRepository {
	if auditCapacity <= 0 {
		auditCapacity = llm.DefaultAuditCapacity
	}
	return &StatsRepository{store: store, auditCapacity: int32(auditCapacity)}
}

// RecordCall increments the counters for model, creating the row on first use.
func (r *StatsRepository) RecordCall(ctx context.Context, model string, success bool, latency time.Duration) error {
	params := sqlcgen.UpsertModelStatParams{
		Model:          model,
		TotalLatencyMs: latency.Milliseconds(),
	}
	if success {
		params.SuccessCount = 1
	} else {
		params.ErrorCount = 1
	}
	return r.store.UpsertModelStat(ctx, params)
}

// RecordAudit stores entry and trims the table back to capacity.
func (r *StatsRepository) RecordAudit(ctx context.Context, entry llm.AuditEntry) error {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("audit id: %w", err)
	}
	if err := r.store.InsertPromptAudit(ctx, sqlcgen.InsertPromptAuditParams{
		ID:        pgtype.UUID{Bytes: id, Valid: true},
		Model:     entry.Model,
		Prompt:    entry.Prompt,
		Response:  entry.Response,
		CreatedAt: pgtype.Timestamptz{Time: entry.CreatedAt, Valid: true},
	}); err != nil {
		return fmt.Errorf("insert prompt audit: %w", err)
	}
	if err := r.store.TrimPromptAudit(ctx, r.auditCapacity); err != nil {
		return fmt.Errorf("trim prompt audit: %w", err)
	}
	return nil
}

// RecordFailure appends to the generation error log.
func (r *StatsRepository) RecordFailure(ctx context.Context, model, message, raw string) error {
	return r.store.InsertGenerationError(ctx, sqlcgen.InsertGenerationErrorParams{
		Model:       model,
		Message:     message,
		RawResponse: pgtype.Text{String: raw, Valid: raw != ""},
	})
}

// ModelStats returns the persisted counters, including those from earlier
// process lifetimes.
func (r *StatsRepository) ModelStats(ctx context.Context) ([]llm.ModelStats, error) {
	rows, err := r.store.ListModelStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]llm.ModelStats, 0, len(rows))
	for _, row := range rows {
		ms := llm.ModelStats{
			Model:          row.Model,
			Successes:      row.SuccessCount,
			Errors:         row.ErrorCount,
			TotalLatencyMS: row.TotalLatencyMs,
		}
		if total := row.SuccessCount + row.ErrorCount; total > 0 {
			ms.AvgLatencyMS = float64(row.TotalLatencyMs) / float64(total)
		}
		out = append(out, ms)
	}
	return out, nil
}

// PromptHistory returns up to limit persisted audit entries, newest first.
func (r *StatsRepository) PromptHistory(ctx context.Context, limit int) ([]llm.AuditEntry, error) {
	if limit <= 0 || limit > int(r.auditCapacity) {
		limit = int(r.auditCapacity)
	}
	rows, err := r.store.ListPromptAudit(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]llm.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := llm.AuditEntry{
			Model:     row.Model,
			Prompt:    row.Prompt,
			Response:  row.Response,
			CreatedAt: row.CreatedAt.Time,
		}
		if row.ID.Valid {
			entry.ID = uuid.UUID(row.ID.Bytes).String()
		}
		out = append(out, entry)
	}
	return out, nil
}
