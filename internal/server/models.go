package server

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// FeedbackRequest is the body of POST /api/answers/:id/feedback.
type FeedbackRequest struct {
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	IsHelpful *bool  `json:"is_helpful"`
}

// AuthSignupRequest creates an account.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest authenticates an account.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ConversationResponse is one entry of GET /api/conversations.
type ConversationResponse struct {
	Question  string  `json:"question"`
	Answer    *string `json:"answer"`
	Timestamp string  `json:"timestamp"`
}

// StatsResponse is the rolling 24h rollup of GET /api/dashboard/stats.
type StatsResponse struct {
	TotalQuestions  int     `json:"total_questions"`
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgTokens       float64 `json:"avg_tokens"`
	FastResponses   int     `json:"fast_responses"`
}
