package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/ragline/ragline/internal/store"
)

func TestDashboardSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &DashboardHandler{Store: &store.Store{DB: db}}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"question_id", "question_text", "user_id", "session_id", "asked_at",
		"answer_id", "answer_text", "model_used", "confidence_score", "total_time_ms", "total_tokens",
		"rating", "feedback_text", "is_helpful"}
	mock.ExpectQuery("FROM conversation_summary").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("q-1", "answered", "u-1", "s-1", now,
				"a-1", "text", "llama-3.3-70b-versatile", 0.9, int64(353), int64(256),
				int64(4), "solid", true).
			AddRow("q-2", "pending", "anonymous", nil, now,
				nil, nil, nil, nil, nil, nil,
				nil, nil, nil))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.summary(ctx); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if out[0]["rating"].(float64) != 4 {
		t.Fatalf("unexpected rating: %v", out[0]["rating"])
	}
	if out[1]["answer_id"] != nil || out[1]["rating"] != nil {
		t.Fatalf("expected null answer fields on unanswered row: %v", out[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDashboardDaily(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &DashboardHandler{Store: &store.Store{DB: db}}
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM daily_performance").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"day", "total_responses", "avg_response_time", "avg_confidence", "fast_responses", "slow_responses"}).
			AddRow(day, 10, 740.2, 0.78, 8, 2))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/daily?days=3", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.daily(ctx); err != nil {
		t.Fatalf("daily: %v", err)
	}

	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 day, got %d", len(out))
	}
	if out[0]["day"] != "2025-06-01" {
		t.Fatalf("unexpected day: %v", out[0]["day"])
	}
	if out[0]["fast_responses"].(float64) != 8 || out[0]["slow_responses"].(float64) != 2 {
		t.Fatalf("unexpected rollup: %v", out[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDashboardDailyRejectsBadRange(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &DashboardHandler{Store: &store.Store{DB: db}}

	for _, days := range []string{"0", "366", "x"} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard/daily?days="+days, nil)
		rec := httptest.NewRecorder()
		ctx := e.NewContext(req, rec)

		err := h.daily(ctx)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Fatalf("days %q: expected 400, got %v", days, err)
		}
	}
}

func TestDashboardStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &DashboardHandler{Store: &store.Store{DB: db}}

	mock.ExpectQuery("FROM answers").
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg_time", "avg_tokens", "fast"}).
			AddRow(42, 612.3, 198.7, 30))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.stats(ctx); err != nil {
		t.Fatalf("stats: %v", err)
	}

	var out StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.TotalQuestions != 42 || out.FastResponses != 30 {
		t.Fatalf("unexpected stats: %+v", out)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
