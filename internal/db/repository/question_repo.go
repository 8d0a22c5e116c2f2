package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
)

// ErrDuplicate reports an insert that hit a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

type questionStore interface {
	InsertGeneratedQuestion(ctx context.Context, arg sqlcgen.InsertGeneratedQuestionParams) error
	CountGeneratedQuestions(ctx context.Context) (int64, error)
	FindReusableQuestions(ctx context.Context, arg sqlcgen.FindReusableQuestionsParams) ([]sqlcgen.GeneratedQuestion, error)
	MarkQuestionUsed(ctx context.Context, arg sqlcgen.MarkQuestionUsedParams) (int64, error)
}

// QuestionRepository wraps sqlc queries for the permanent question archive.
type QuestionRepository struct {
	store questionStore
}

func NewQuestionRepository(store questionStore) *QuestionRepository {
	return &QuestionRepository{store: store}
}

// Insert archives a generated question. Question text is unique; a repeat
// returns ErrDuplicate.
func (r *QuestionRepository) Insert(ctx context.Context, params sqlcgen.InsertGeneratedQuestionParams) error {
	if err := r.store.InsertGeneratedQuestion(ctx, params); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Count returns how many questions have been archived.
func (r *QuestionRepository) Count(ctx context.Context) (int64, error) {
	return r.store.CountGeneratedQuestions(ctx)
}

// FindReusable lists archived questions matching params that were last
// served before params.UsedBefore, least recently used first.
func (r *QuestionRepository) FindReusable(ctx context.Context, params sqlcgen.FindReusableQuestionsParams) ([]sqlcgen.GeneratedQuestion, error) {
	if params.MaxRows <= 0 {
		params.MaxRows = 1
	}
	return r.store.FindReusableQuestions(ctx, params)
}

// MarkUsed stamps id as served now. It reports false when the row was
// already served after usedBefore, which means a concurrent request won it.
func (r *QuestionRepository) MarkUsed(ctx context.Context, id int64, usedBefore time.Time) (bool, error) {
	n, err := r.store.MarkQuestionUsed(ctx, sqlcgen.MarkQuestionUsedParams{
		ID:         id,
		UsedBefore: pgtype.Timestamptz{Time: usedBefore, Valid: true},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
