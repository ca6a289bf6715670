package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/pipeline"
	"github.com/ragline/ragline/internal/store"
)

const (
	conversationsKeyPrefix = "conversations:recent:"
	conversationsCacheTTL  = 30 * time.Second
)

// Asker is the chat capability the handler consumes; satisfied by
// *pipeline.Pipeline.
type Asker interface {
	Ask(ctx context.Context, question, userID, sessionID string) (pipeline.Result, error)
}

// ChatHandler serves the chat endpoint, feedback capture and recent history.
type ChatHandler struct {
	Store    *store.Store
	Pipeline Asker
	Rdb      *redis.Client
	Logger   *log.Logger
}

func (h *ChatHandler) Register(api *echo.Group, secret []byte) {
	chat := api.Group("")
	chat.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withOptionalAuth(next, secret) })
	chat.POST("/chat", h.chat)
	chat.POST("/answers/:id/feedback", h.feedback)
	chat.GET("/conversations", h.conversations)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	userID := req.UserID
	if sub, ok := c.Get("user_id").(string); ok && sub != "" {
		userID = sub
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	res, err := h.Pipeline.Ask(c.Request().Context(), req.Message, userID, sessionID)
	if err != nil {
		metrics.RequestTotal.WithLabelValues("error").Inc()
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	metrics.RequestTotal.WithLabelValues("ok").Inc()

	h.invalidateConversations(c.Request().Context())

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"result":     res,
	})
}

func (h *ChatHandler) feedback(c echo.Context) error {
	answerID := c.Param("id")
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := h.Store.LogFeedback(c.Request().Context(), answerID, req.Rating, req.Comment, req.IsHelpful)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok {
			switch pgErr.Code {
			case "23514": // check_violation: rating outside [1,5]
				return echo.NewHTTPError(http.StatusBadRequest, "rating must be between 1 and 5")
			case "23503": // foreign_key_violation: unknown answer
				return echo.NewHTTPError(http.StatusNotFound, "answer not found")
			}
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	metrics.FeedbackRating.Observe(float64(req.Rating))
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *ChatHandler) conversations(c echo.Context) error {
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be in [1,100]")
		}
		limit = n
	}
	ctx := c.Request().Context()

	if h.Rdb != nil {
		if cached, err := h.Rdb.Get(ctx, conversationsKey(limit)).Result(); err == nil {
			return c.JSONBlob(http.StatusOK, []byte(cached))
		}
	}

	items, err := h.Store.RecentConversations(ctx, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ConversationResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ConversationResponse{
			Question:  it.Question,
			Answer:    it.Answer,
			Timestamp: it.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	if h.Rdb != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := h.Rdb.Set(ctx, conversationsKey(limit), data, conversationsCacheTTL).Err(); err != nil {
				h.Logger.Printf("cache conversations: %v", err)
			}
		}
	}
	return c.JSON(http.StatusOK, out)
}

// invalidateConversations drops all cached history pages after a new answer.
func (h *ChatHandler) invalidateConversations(ctx context.Context) {
	if h.Rdb == nil {
		return
	}
	keys, err := h.Rdb.Keys(ctx, conversationsKeyPrefix+"*").Result()
	if err != nil {
		h.Logger.Printf("invalidate conversations: %v", err)
		return
	}
	if len(keys) > 0 {
		if err := h.Rdb.Del(ctx, keys...).Err(); err != nil {
			h.Logger.Printf("invalidate conversations: %v", err)
		}
	}
}

func conversationsKey(limit int) string {
	return fmt.Sprintf("%s%d", conversationsKeyPrefix, limit)
}
