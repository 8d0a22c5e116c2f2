// Queries from db/queries/telemetry.sql.

package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertGenerationError = `-- name: InsertGenerationError :exec
INSERT INTO generation_errors (model, message, raw_response)
VALUES ($1, $2, $3)
`

type InsertGenerationErrorParams struct {
	Model       string      `json:"model"`
	Message     string      `json:"message"`
	RawResponse pgtype.Text `json:"raw_response"`
}

func (q *Queries) InsertGenerationError(ctx context.Context, arg InsertGenerationErrorParams) error {
	_, err := q.db.Exec(ctx, insertGenerationError, arg.Model, arg.Message, arg.RawResponse)
	return err
}

const insertPromptAudit = `-- name: InsertPromptAudit :exec
INSERT INTO prompt_audit (id, model, prompt, response, created_at)
VALUES ($1, $2, $3, $4, $5)
`

type InsertPromptAuditParams struct {
	ID        pgtype.UUID        `json:"id"`
	Model     string             `json:"model"`
	Prompt    string             `json:"prompt"`
	Response  string             `json:"response"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

func (q *Queries) InsertPromptAudit(ctx context.Context, arg InsertPromptAuditParams) error {
	_, err := q.db.Exec(ctx, insertPromptAudit,
		arg.ID,
		arg.Model,
		arg.Prompt,
		arg.Response,
		arg.CreatedAt,
	)
	return err
}

const listModelStats = `-- name: ListModelStats :many
SELECT model, success_count, error_count, total_latency_ms, updated_at
FROM model_stats
ORDER BY model
`

func (q *Queries) ListModelStats(ctx context.Context) ([]ModelStat, error) {
	rows, err := q.db.Query(ctx, listModelStats)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ModelStat
	for rows.Next() {
		var i ModelStat
		if err := rows.Scan(
			&i.Model,
			&i.SuccessCount,
			&i.ErrorCount,
			&i.TotalLatencyMs,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPromptAudit = `-- name: ListPromptAudit :many
SELECT id, model, prompt, response, created_at
FROM prompt_audit
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) ListPromptAudit(ctx context.Context, limit int32) ([]PromptAudit, error) {
	rows, err := q.db.Query(ctx, listPromptAudit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PromptAudit
	for rows.Next() {
		var i PromptAudit
		if err := rows.Scan(
			&i.ID,
			&i.Model,
			&i.Prompt,
			&i.Response,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const trimPromptAudit = `-- name: TrimPromptAudit :exec
DELETE FROM prompt_audit
WHERE id NOT IN (
    SELECT id FROM prompt_audit ORDER BY created_at DESC LIMIT $1
)
`

func (q *Queries) TrimPromptAudit(ctx context.Context, limit int32) error {
	_, err := q.db.Exec(ctx, trimPromptAudit, limit)
	return err
}

const upsertModelStat = `-- name: UpsertModelStat :exec
INSERT INTO model_stats (model, success_count, error_count, total_latency_ms)
VALUES ($1, $2, $3, $4)
ON CONFLICT (model) DO UPDATE SET
    success_count    = model_stats.success_count + EXCLUDED.success_count,
    error_count      = model_stats.error_count + EXCLUDED.error_count,
    total_latency_ms = model_stats.total_latency_ms + EXCLUDED.total_latency_ms,
    updated_at       = now()
`

type UpsertModelStatParams struct {
	Model          string `json:"model"`
	SuccessCount   int64  `json:"success_count"`
	ErrorCount     int64  `json:"error_count"`
	TotalLatencyMs int64  `json:"total_latency_ms"`
}

func (q *Queries) UpsertModelStat(ctx context.Context, arg UpsertModelStatParams) error {
	_, err := q.db.Exec(ctx, upsertModelStat,
		arg.Model,
		arg.SuccessCount,
		arg.ErrorCount,
		arg.TotalLatencyMs,
	)
	return err
}
