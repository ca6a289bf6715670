package store_test

import (
	"context"
	"fmt"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ragline/ragline/db"
	"github.com/ragline/ragline/internal/store"
)

func startPostgres(t *testing.T) (context.Context, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcPostgres.WithDatabase("ragline"),
		tcPostgres.WithUsername("ragline"),
		tcPostgres.WithPassword("ragline"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://ragline:ragline@%s:%s/ragline?sslmode=disable", host, port.Port())
	if err := db.Up(dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// second run must be a no-op
	if err := db.Up(dsn); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	return ctx, dsn
}

func TestQuestionAnswerRoundTrip(t *testing.T) {
	ctx, dsn := startPostgres(t)

	st, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	qID, err := st.LogQuestion(ctx, "what is hybrid search?", "", "sess-1")
	if err != nil {
		t.Fatalf("LogQuestion: %v", err)
	}

	q, ok, err := st.GetQuestion(ctx, qID)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if !ok {
		t.Fatalf("question not found after insert")
	}
	if q.UserID != "anonymous" {
		t.Fatalf("expected anonymous default, got %q", q.UserID)
	}
	if q.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %q", q.SessionID)
	}

	aID, err := st.LogAnswer(ctx, store.AnswerRecord{
		QuestionID:         qID,
		AnswerText:         "it combines dense and sparse retrieval",
		ContextUsed:        "Context: ...",
		ModelUsed:          "llama-3.3-70b-versatile",
		ConfidenceScore:    0.92,
		RetrievalTimeMs:    40,
		GenerationTimeMs:   300,
		TotalTimeMs:        340,
		QdrantCollection:   "rag_docs",
		RetrievedDocsCount: 5,
		TotalTokens:        211,
	})
	if err != nil {
		t.Fatalf("LogAnswer: %v", err)
	}

	helpful := true
	if _, err := st.LogFeedback(ctx, aID, 5, "clear", &helpful); err != nil {
		t.Fatalf("LogFeedback: %v", err)
	}

	if _, err := st.LogRetrievalMetric(ctx, store.RetrievalMetricRecord{
		QuestionID:       qID,
		QueryTimeMs:      40,
		TopK:             5,
		SimilarityScores: []float64{0.92, 0.85},
	}); err != nil {
		t.Fatalf("LogRetrievalMetric: %v", err)
	}

	summaries, err := st.ConversationSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("ConversationSummaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.AnswerID == nil || *s.AnswerID != aID {
		t.Fatalf("unexpected answer id: %#v", s.AnswerID)
	}
	if s.Rating == nil || *s.Rating != 5 {
		t.Fatalf("unexpected rating: %#v", s.Rating)
	}
}

func TestFeedbackConstraints(t *testing.T) {
	ctx, dsn := startPostgres(t)

	st, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	qID, err := st.LogQuestion(ctx, "q", "u", "")
	if err != nil {
		t.Fatalf("LogQuestion: %v", err)
	}
	aID, err := st.LogAnswer(ctx, store.AnswerRecord{QuestionID: qID, AnswerText: "a", ModelUsed: "m"})
	if err != nil {
		t.Fatalf("LogAnswer: %v", err)
	}

	for _, rating := range []int{0, 6} {
		if _, err := st.LogFeedback(ctx, aID, rating, "", nil); err == nil {
			t.Fatalf("expected check violation for rating %d", rating)
		}
	}

	// unknown answer violates the foreign key
	if _, err := st.LogFeedback(ctx, "00000000-0000-0000-0000-000000000000", 3, "", nil); err == nil {
		t.Fatalf("expected foreign key violation for unknown answer")
	}

	// answers for unknown questions are rejected too
	if _, err := st.LogAnswer(ctx, store.AnswerRecord{
		QuestionID: "00000000-0000-0000-0000-000000000000",
		AnswerText: "orphan",
	}); err == nil {
		t.Fatalf("expected foreign key violation for unknown question")
	}
}

func TestDailyPerformanceView(t *testing.T) {
	ctx, dsn := startPostgres(t)

	st, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	qID, err := st.LogQuestion(ctx, "perf", "u", "")
	if err != nil {
		t.Fatalf("LogQuestion: %v", err)
	}
	for _, ms := range []int{500, 1500} {
		if _, err := st.LogAnswer(ctx, store.AnswerRecord{
			QuestionID:      qID,
			AnswerText:      fmt.Sprintf("answer in %dms", ms),
			ModelUsed:       "m",
			ConfidenceScore: 0.5,
			TotalTimeMs:     ms,
		}); err != nil {
			t.Fatalf("LogAnswer(%d): %v", ms, err)
		}
	}

	rollup, err := st.DailyPerformanceRollup(ctx, 7)
	if err != nil {
		t.Fatalf("DailyPerformanceRollup: %v", err)
	}
	if len(rollup) != 1 {
		t.Fatalf("expected 1 day, got %d", len(rollup))
	}
	day := rollup[0]
	if day.TotalResponses != 2 {
		t.Fatalf("expected 2 responses, got %d", day.TotalResponses)
	}
	if day.FastResponses != 1 || day.SlowResponses != 1 {
		t.Fatalf("expected 1 fast and 1 slow, got %d/%d", day.FastResponses, day.SlowResponses)
	}
	if day.AvgResponseTime != 1000 {
		t.Fatalf("expected avg 1000ms, got %v", day.AvgResponseTime)
	}

	stats, err := st.GetSystemStats(ctx)
	if err != nil {
		t.Fatalf("GetSystemStats: %v", err)
	}
	if stats.TotalQuestions != 2 || stats.FastResponses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
