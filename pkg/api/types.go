package api

import "time"

// Wire shapes for the cookie-authenticated web surface.

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Answer                string  `json:"answer"`
	GenerationTimeSeconds float64 `json:"generation_time_seconds"`
}

type LoginForm struct {
	Email    string `schema:"email" json:"email"`
	Password string `schema:"password" json:"password"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionHistoryResponse struct {
	History []Message `json:"history"`
}

type SessionPreview struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
}

type SessionListResponse struct {
	Sessions []SessionPreview `json:"sessions"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
