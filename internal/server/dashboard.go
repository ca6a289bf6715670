package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ragline/ragline/internal/store"
)

// DashboardHandler reads the two analytic views and the 24h rollup.
type DashboardHandler struct {
	Store *store.Store
}

func (h *DashboardHandler) Register(g *echo.Group) {
	g.GET("/summary", h.summary)
	g.GET("/daily", h.daily)
	g.GET("/stats", h.stats)
}

func (h *DashboardHandler) summary(c echo.Context) error {
	limit, err := positiveQueryParam(c, "limit", 50, 500)
	if err != nil {
		return err
	}
	items, err := h.Store.ConversationSummaries(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]interface{}{
			"question_id":      it.QuestionID,
			"question_text":    it.QuestionText,
			"user_id":          it.UserID,
			"session_id":       it.SessionID,
			"asked_at":         it.AskedAt.UTC().Format(time.RFC3339),
			"answer_id":        it.AnswerID,
			"answer_text":      it.AnswerText,
			"model_used":       it.ModelUsed,
			"confidence_score": it.ConfidenceScore,
			"total_time_ms":    it.TotalTimeMs,
			"total_tokens":     it.TotalTokens,
			"rating":           it.Rating,
			"feedback_text":    it.FeedbackText,
			"is_helpful":       it.IsHelpful,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) daily(c echo.Context) error {
	days, err := positiveQueryParam(c, "days", 7, 365)
	if err != nil {
		return err
	}
	items, err := h.Store.DailyPerformanceRollup(c.Request().Context(), days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]interface{}{
			"day":               it.Day.Format("2006-01-02"),
			"total_responses":   it.TotalResponses,
			"avg_response_time": it.AvgResponseTime,
			"avg_confidence":    it.AvgConfidence,
			"fast_responses":    it.FastResponses,
			"slow_responses":    it.SlowResponses,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) stats(c echo.Context) error {
	stats, err := h.Store.GetSystemStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, StatsResponse{
		TotalQuestions:  stats.TotalQuestions,
		AvgResponseTime: stats.AvgResponseTime,
		AvgTokens:       stats.AvgTokens,
		FastResponses:   stats.FastResponses,
	})
}

func positiveQueryParam(c echo.Context, name string, def, max int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be in [1,"+strconv.Itoa(max)+"]")
	}
	return n, nil
}
