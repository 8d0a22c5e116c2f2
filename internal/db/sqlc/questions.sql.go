// Queries from db/queries/questions.sql.

package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const countGeneratedQuestions = `-- name: CountGeneratedQuestions :one
SELECT COUNT(*) FROM generated_questions
`

func (q *Queries) CountGeneratedQuestions(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countGeneratedQuestions)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const findReusableQuestions = `-- name: FindReusableQuestions :many
SELECT id, model, language, category, knowledge_level, game_mode, theme,
       question_text, answer_text, explanation, subcategory, key_entities, options,
       created_at, last_used_at
FROM generated_questions
WHERE model = $1
  AND language = $2
  AND category = $3
  AND knowledge_level = $4
  AND game_mode = $5
  AND theme IS NOT DISTINCT FROM $6
  AND (last_used_at IS NULL OR last_used_at <= $7)
ORDER BY last_used_at NULLS FIRST, id
LIMIT $8
`

type FindReusableQuestionsParams struct {
	Model          string             `json:"model"`
	Language       string             `json:"language"`
	Category       string             `json:"category"`
	KnowledgeLevel string             `json:"knowledge_level"`
	GameMode       string             `json:"game_mode"`
	Theme          pgtype.Text        `json:"theme"`
	UsedBefore     pgtype.Timestamptz `json:"used_before"`
	MaxRows        int32              `json:"max_rows"`
}

func (q *Queries) FindReusableQuestions(ctx context.Context, arg FindReusableQuestionsParams) ([]GeneratedQuestion, error) {
	rows, err := q.db.Query(ctx, findReusableQuestions,
		arg.Model,
		arg.Language,
		arg.Category,
		arg.KnowledgeLevel,
		arg.GameMode,
		arg.Theme,
		arg.UsedBefore,
		arg.MaxRows,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GeneratedQuestion
	for rows.Next() {
		var i GeneratedQuestion
		if err := rows.Scan(
			&i.ID,
			&i.Model,
			&i.Language,
			&i.Category,
			&i.KnowledgeLevel,
			&i.GameMode,
			&i.Theme,
			&i.QuestionText,
			&i.AnswerText,
			&i.Explanation,
			&i.Subcategory,
			&i.KeyEntities,
			&i.Options,
			&i.CreatedAt,
			&i.LastUsedAt,
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

const insertGeneratedQuestion = `-- name: InsertGeneratedQuestion :exec
INSERT INTO generated_questions (
    model, language, category, knowledge_level, game_mode, theme,
    question_text, answer_text, explanation, subcategory, key_entities, options,
    last_used_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now()
)
`

type InsertGeneratedQuestionParams struct {
	Model          string      `json:"model"`
	Language       string      `json:"language"`
	Category       string      `json:"category"`
	KnowledgeLevel string      `json:"knowledge_level"`
	GameMode       string      `json:"game_mode"`
	Theme          pgtype.Text `json:"theme"`
	QuestionText   string      `json:"question_text"`
	AnswerText     string      `json:"answer_text"`
	Explanation    pgtype.Text `json:"explanation"`
	Subcategory    pgtype.Text `json:"subcategory"`
	KeyEntities    []byte      `json:"key_entities"`
	Options        []byte      `json:"options"`
}

func (q *Queries) InsertGeneratedQuestion(ctx context.Context, arg InsertGeneratedQuestionParams) error {
	_, err := q.db.Exec(ctx, insertGeneratedQuestion,
		arg.Model,
		arg.Language,
		arg.Category,
		arg.KnowledgeLevel,
		arg.GameMode,
		arg.Theme,
		arg.QuestionText,
		arg.AnswerText,
		arg.Explanation,
		arg.Subcategory,
		arg.KeyEntities,
		arg.Options,
	)
	return err
}

const markQuestionUsed = `-- name: MarkQuestionUsed :execrows
UPDATE generated_questions
SET last_used_at = now()
WHERE id = $1
  AND (last_used_at IS NULL OR last_used_at <= $2)
`

type MarkQuestionUsedParams struct {
	ID         int64              `json:"id"`
	UsedBefore pgtype.Timestamptz `json:"used_before"`
}

func (q *Queries) MarkQuestionUsed(ctx context.Context, arg MarkQuestionUsedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markQuestionUsed, arg.ID, arg.UsedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
