package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
)

// ReusableArchive hands archived questions back out once they have rested
// for the cooldown.
type ReusableArchive interface {
	FindReusable(ctx context.Context, params sqlcgen.FindReusableQuestionsParams) ([]sqlcgen.GeneratedQuestion, error)
	MarkUsed(ctx context.Context, id int64, usedBefore time.Time) (bool, error)
}

// fromArchive claims the least recently used archived question that matches
// the request scope exactly. Claiming is conditional so two requests never
// serve the same row within one cooldown.
func (s *Service) fromArchive(ctx context.Context, req Request, model string) (Record, bool) {
	if s.archive == nil {
		return Record{}, false
	}

	theme := req.EffectiveTheme()
	cutoff := time.Now().Add(-s.opts.ReuseCooldown)
	rows, err := s.archive.FindReusable(ctx, sqlcgen.FindReusableQuestionsParams{
		Model:          model,
		Language:       req.Language,
		Category:       req.Category,
		KnowledgeLevel: req.KnowledgeLevel,
		GameMode:       req.GameMode,
		Theme:          pgtype.Text{String: theme, Valid: theme != ""},
		UsedBefore:     pgtype.Timestamptz{Time: cutoff, Valid: true},
		MaxRows:        int32(s.opts.ReuseCandidates),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("category", req.Category).Msg("archive lookup failed")
		return Record{}, false
	}

	for _, row := range rows {
		rec, err := fromArchived(row)
		if err != nil {
			s.logger.Warn().Err(err).Int64("question_id", row.ID).Msg("skipping archived question")
			continue
		}
		claimed, err := s.archive.MarkUsed(ctx, row.ID, cutoff)
		if err != nil {
			s.logger.Warn().Err(err).Int64("question_id", row.ID).Msg("archive claim failed")
			return Record{}, false
		}
		if claimed {
			return rec, true
		}
	}
	return Record{}, false
}

func fromArchived(row sqlcgen.GeneratedQuestion) (Record, error) {
	rec := Record{
		ID:          strconv.FormatInt(row.ID, 10),
		Question:    row.QuestionText,
		Answer:      row.AnswerText,
		Explanation: row.Explanation.String,
		Subcategory: row.Subcategory.String,
		Model:       row.Model,
		Options:     []string{},
		KeyEntities: []string{},
	}
	if len(row.Options) > 0 {
		if err := json.Unmarshal(row.Options, &rec.Options); err != nil {
			return Record{}, fmt.Errorf("decode options of question %d: %w", row.ID, err)
		}
	}
	if len(row.KeyEntities) > 0 {
		if err := json.Unmarshal(row.KeyEntities, &rec.KeyEntities); err != nil {
			return Record{}, fmt.Errorf("decode key entities of question %d: %w", row.ID, err)
		}
	}
	if row.GameMode == GameModeMCQ && len(rec.Options) != mcqOptionCount {
		return Record{}, fmt.Errorf("question %d has %d options", row.ID, len(rec.Options))
	}
	return rec, nil
}
