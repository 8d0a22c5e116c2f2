package sqlcgen

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type GeneratedQuestion struct {
	ID             int64              `json:"id"`
	Model          string             `json:"model"`
	Language       string             `json:"language"`
	Category       string             `json:"category"`
	KnowledgeLevel string             `json:"knowledge_level"`
	GameMode       string             `json:"game_mode"`
	Theme          pgtype.Text        `json:"theme"`
	QuestionText   string             `json:"question_text"`
	AnswerText     string             `json:"answer_text"`
	Explanation    pgtype.Text        `json:"explanation"`
	Subcategory    pgtype.Text        `json:"subcategory"`
	KeyEntities    []byte             `json:"key_entities"`
	Options        []byte             `json:"options"`
	CreatedAt      pgtype.Timestamptz `json:"created_at"`
	LastUsedAt     pgtype.Timestamptz `json:"last_used_at"`
}

type GenerationError struct {
	ID          int64              `json:"id"`
	Model       string             `json:"model"`
	Message     string             `json:"message"`
	RawResponse pgtype.Text        `json:"raw_response"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
}

type ModelStat struct {
	Model          string             `json:"model"`
	SuccessCount   int64              `json:"success_count"`
	ErrorCount     int64              `json:"error_count"`
	TotalLatencyMs int64              `json:"total_latency_ms"`
	UpdatedAt      pgtype.Timestamptz `json:"updated_at"`
}

type PromptAudit struct {
	ID        pgtype.UUID        `json:"id"`
	Model     string             `json:"model"`
	Prompt    string             `json:"prompt"`
	Response  string             `json:"response"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}
