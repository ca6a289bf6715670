// Package store persists every step of the question answering pipeline into
// Postgres: questions, answers, feedback, ingestion logs and retrieval
// metrics, plus the two analytic views read by the dashboard.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Ingestion statuses persisted in ingestion_logs.
const (
	IngestionStatusCompleted = "completed"
	IngestionStatusFailed    = "failed"
)

// QuestionRecord is a row in the questions table.
type QuestionRecord struct {
	ID           string
	QuestionText string
	UserID       string
	SessionID    string
	CreatedAt    time.Time
}

// AnswerRecord captures a generated answer together with its timing breakdown
// and retrieval diagnostics. Times are in milliseconds.
type AnswerRecord struct {
	ID                 string
	QuestionID         string
	AnswerText         string
	ContextUsed        string
	ModelUsed          string
	ConfidenceScore    float64
	RetrievalTimeMs    int
	GenerationTimeMs   int
	TotalTimeMs        int
	QdrantCollection   string
	RetrievedDocsCount int
	TotalTokens        int
	CreatedAt          time.Time
}

// FeedbackRecord is a user rating for an answer. Rating must be in [1,5];
// the check constraint enforces it and violations surface as errors.
type FeedbackRecord struct {
	ID           string
	AnswerID     string
	Rating       int
	FeedbackText string
	IsHelpful    *bool
	CreatedAt    time.Time
}

// IngestionRecord summarises one bulk load into the vector store.
type IngestionRecord struct {
	ID             string
	CollectionName string
	DocumentsCount int
	DurationMs     int
	DenseModel     string
	SparseModel    string
	Status         string
	ErrorMessage   string
	CreatedAt      time.Time
}

// RetrievalMetricRecord holds per-question retrieval diagnostics. Scores are
// stored JSON-encoded, one entry per retrieved document.
type RetrievalMetricRecord struct {
	ID                  string
	QuestionID          string
	QueryTimeMs         int
	TopK                int
	SimilarityThreshold float64
	SimilarityScores    []float64
	CreatedAt           time.Time
}

// ConversationSummary is a row of the conversation_summary view. Answer and
// feedback fields are nil when the question has no answer or rating yet.
type ConversationSummary struct {
	QuestionID      string
	QuestionText    string
	UserID          string
	SessionID       string
	AskedAt         time.Time
	AnswerID        *string
	AnswerText      *string
	ModelUsed       *string
	ConfidenceScore *float64
	TotalTimeMs     *int
	TotalTokens     *int
	Rating          *int
	FeedbackText    *string
	IsHelpful       *bool
}

// DailyPerformance is a row of the daily_performance view.
type DailyPerformance struct {
	Day             time.Time
	TotalResponses  int
	AvgResponseTime float64
	AvgConfidence   float64
	FastResponses   int
	SlowResponses   int
}

// SystemStats is the rolling 24 hour rollup shown on the dashboard.
type SystemStats struct {
	TotalQuestions  int
	AvgResponseTime float64
	AvgTokens       float64
	FastResponses   int
}

// Conversation pairs a question with its answer (if any) for chat history.
type Conversation struct {
	Question  string
	Answer    *string
	Timestamp time.Time
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// LogQuestion inserts a submitted question and returns its generated id.
// userID defaults to "anonymous"; sessionID may be empty.
func (s *Store) LogQuestion(ctx context.Context, questionText, userID, sessionID string) (string, error) {
	if strings.TrimSpace(questionText) == "" {
		return "", fmt.Errorf("question text required")
	}
	if strings.TrimSpace(userID) == "" {
		userID = "anonymous"
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO questions (question_text, user_id, session_id)
VALUES ($1,$2,$3)
RETURNING id
`, questionText, userID, nullableString(sessionID)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetQuestion fetches a question by id. The second return is false when the
// id does not exist.
func (s *Store) GetQuestion(ctx context.Context, id string) (QuestionRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, question_text, user_id, session_id, created_at
FROM questions
WHERE id=$1
`, id)
	var rec QuestionRecord
	var sessionID sql.NullString
	if err := row.Scan(&rec.ID, &rec.QuestionText, &rec.UserID, &sessionID, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return QuestionRecord{}, false, nil
		}
		return QuestionRecord{}, false, err
	}
	if sessionID.Valid {
		rec.SessionID = sessionID.String
	}
	return rec, true, nil
}

// LogAnswer inserts a generated answer with its metrics and returns the
// generated id. The question_id must reference an existing question.
func (s *Store) LogAnswer(ctx context.Context, rec AnswerRecord) (string, error) {
	if strings.TrimSpace(rec.QuestionID) == "" {
		return "", fmt.Errorf("question_id required")
	}
	if strings.TrimSpace(rec.AnswerText) == "" {
		return "", fmt.Errorf("answer text required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO answers (
    question_id, answer_text, context_used, model_used,
    confidence_score, retrieval_time_ms, generation_time_ms,
    total_time_ms, qdrant_collection, retrieved_docs_count, total_tokens
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`, rec.QuestionID, rec.AnswerText, nullableString(rec.ContextUsed), rec.ModelUsed,
		rec.ConfidenceScore, rec.RetrievalTimeMs, rec.GenerationTimeMs,
		rec.TotalTimeMs, nullableString(rec.QdrantCollection), rec.RetrievedDocsCount, rec.TotalTokens).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LogFeedback inserts a user rating for an answer and returns the generated
// id. Ratings outside [1,5] fail with a check constraint violation.
func (s *Store) LogFeedback(ctx context.Context, answerID string, rating int, feedbackText string, isHelpful *bool) (string, error) {
	if strings.TrimSpace(answerID) == "" {
		return "", fmt.Errorf("answer_id required")
	}
	var helpful sql.NullBool
	if isHelpful != nil {
		helpful = sql.NullBool{Bool: *isHelpful, Valid: true}
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO feedback (answer_id, rating, feedback_text, is_helpful)
VALUES ($1,$2,$3,$4)
RETURNING id
`, answerID, rating, nullableString(feedbackText), helpful).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LogIngestion records a bulk load run and returns the generated id.
func (s *Store) LogIngestion(ctx context.Context, rec IngestionRecord) (string, error) {
	if strings.TrimSpace(rec.CollectionName) == "" {
		return "", fmt.Errorf("collection name required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO ingestion_logs (collection_name, documents_count, duration_ms, dense_model, sparse_model, status, error_message)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`, rec.CollectionName, rec.DocumentsCount, rec.DurationMs,
		nullableString(rec.DenseModel), nullableString(rec.SparseModel),
		rec.Status, nullableString(rec.ErrorMessage)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LogRetrievalMetric records per-question retrieval diagnostics and returns
// the generated id.
func (s *Store) LogRetrievalMetric(ctx context.Context, rec RetrievalMetricRecord) (string, error) {
	if strings.TrimSpace(rec.QuestionID) == "" {
		return "", fmt.Errorf("question_id required")
	}
	scores := rec.SimilarityScores
	if scores == nil {
		scores = []float64{}
	}
	payload, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("marshal similarity scores: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO retrieval_metrics (question_id, query_time_ms, top_k, similarity_threshold, similarity_scores)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, rec.QuestionID, rec.QueryTimeMs, rec.TopK, rec.SimilarityThreshold, payload).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecentConversations returns the latest questions with their answers (when
// present), newest first.
func (s *Store) RecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT q.question_text, a.answer_text, q.created_at
FROM questions q
LEFT JOIN answers a ON q.id = a.question_id
ORDER BY q.created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var answer sql.NullString
		if err := rows.Scan(&c.Question, &answer, &c.Timestamp); err != nil {
			return nil, err
		}
		if answer.Valid {
			c.Answer = &answer.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConversationSummaries reads the conversation_summary view, newest first.
func (s *Store) ConversationSummaries(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT question_id, question_text, user_id, session_id, asked_at,
       answer_id, answer_text, model_used, confidence_score, total_time_ms, total_tokens,
       rating, feedback_text, is_helpful
FROM conversation_summary
ORDER BY asked_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var rec ConversationSummary
		var sessionID, answerID, answerText, modelUsed, feedbackText sql.NullString
		var confidence sql.NullFloat64
		var totalTime, totalTokens, rating sql.NullInt64
		var helpful sql.NullBool
		if err := rows.Scan(&rec.QuestionID, &rec.QuestionText, &rec.UserID, &sessionID, &rec.AskedAt,
			&answerID, &answerText, &modelUsed, &confidence, &totalTime, &totalTokens,
			&rating, &feedbackText, &helpful); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			rec.SessionID = sessionID.String
		}
		if answerID.Valid {
			rec.AnswerID = &answerID.String
		}
		if answerText.Valid {
			rec.AnswerText = &answerText.String
		}
		if modelUsed.Valid {
			rec.ModelUsed = &modelUsed.String
		}
		if confidence.Valid {
			v := confidence.Float64
			rec.ConfidenceScore = &v
		}
		if totalTime.Valid {
			v := int(totalTime.Int64)
			rec.TotalTimeMs = &v
		}
		if totalTokens.Valid {
			v := int(totalTokens.Int64)
			rec.TotalTokens = &v
		}
		if rating.Valid {
			v := int(rating.Int64)
			rec.Rating = &v
		}
		if feedbackText.Valid {
			rec.FeedbackText = &feedbackText.String
		}
		if helpful.Valid {
			v := helpful.Bool
			rec.IsHelpful = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DailyPerformanceRollup reads the daily_performance view for the last n days.
func (s *Store) DailyPerformanceRollup(ctx context.Context, days int) ([]DailyPerformance, error) {
	if days <= 0 {
		days = 7
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT day, total_responses, avg_response_time, avg_confidence, fast_responses, slow_responses
FROM daily_performance
LIMIT $1
`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyPerformance
	for rows.Next() {
		var rec DailyPerformance
		var avgTime, avgConf sql.NullFloat64
		if err := rows.Scan(&rec.Day, &rec.TotalResponses, &avgTime, &avgConf, &rec.FastResponses, &rec.SlowResponses); err != nil {
			return nil, err
		}
		if avgTime.Valid {
			rec.AvgResponseTime = avgTime.Float64
		}
		if avgConf.Valid {
			rec.AvgConfidence = avgConf.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSystemStats computes the rolling 24 hour performance rollup.
func (s *Store) GetSystemStats(ctx context.Context) (SystemStats, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(AVG(total_time_ms), 0),
       COALESCE(AVG(total_tokens), 0),
       COUNT(CASE WHEN total_time_ms < 1000 THEN 1 END)
FROM answers
WHERE created_at >= NOW() - INTERVAL '24 hours'
`)
	var stats SystemStats
	if err := row.Scan(&stats.TotalQuestions, &stats.AvgResponseTime, &stats.AvgTokens, &stats.FastResponses); err != nil {
		return SystemStats{}, err
	}
	return stats, nil
}

// User operations (optional accounts for attributing questions)

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func nullableString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
