package api

import "time"

// Wire shapes for the key-authenticated /api/v1 surface.

type GenerateKeyRequest struct {
	Name        string `json:"name"`
	OwnerEmail  string `json:"owner_email"`
	Description string `json:"description"`
}

type GenerateKeyResponse struct {
	KeyID      string    `json:"key_id"`
	APIKey     string    `json:"api_key"` // only returned once, at creation
	Name       string    `json:"name"`
	OwnerEmail string    `json:"owner_email"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
}

type KeyMetadata struct {
	KeyID       string     `json:"key_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used"`
	IsActive    bool       `json:"is_active"`
	UsageCount  int64      `json:"usage_count"`
}

type ListKeysQuery struct {
	OwnerEmail string `schema:"owner_email"`
}

type ListKeysResponse struct {
	Keys []KeyMetadata `json:"keys"`
}

type RevokeKeyRequest struct {
	OwnerEmail string `json:"owner_email"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response              string  `json:"response"`
	GenerationTimeSeconds float64 `json:"generation_time_seconds"`
}

type UsageResponse struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	UsageCount int64      `json:"usage_count"`
	LastUsed   *time.Time `json:"last_used"`
	CreatedAt  time.Time  `json:"created_at"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
