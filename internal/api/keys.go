package api

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"archie-backend/internal/analytics"
	"archie-backend/internal/llm"
	"archie-backend/internal/store"
	"archie-backend/internal/streaming"
	pkgapi "archie-backend/pkg/api"
)

type keyContextKey struct{}

// KeyService serves the /api/v1 surface: key management plus the
// key-authenticated chat endpoints. API traffic is logged to its own
// collector under the synthetic session id "api_<key_id>".
type KeyService struct {
	keys      *store.KeyStore
	producer  llm.Producer
	collector analytics.Collector
}

func NewKeyService(keys *store.KeyStore, producer llm.Producer, collector analytics.Collector) *KeyService {
	return &KeyService{keys: keys, producer: producer, collector: collector}
}

func (s *KeyService) AddRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", RestHandler(s.Health))
		r.Post("/keys/generate", RestHandler(s.GenerateKey))
		r.Get("/keys", RestHandler(s.ListKeys))
		r.Post("/keys/{key_id}/revoke", RestHandler(s.RevokeKey))

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAPIKey)
			r.Post("/chat", RestHandler(s.Chat))
			r.Post("/chat/stream", s.ChatStream)
			r.Get("/usage", RestHandler(s.Usage))
		})
	})
}

// RequireAPIKey authenticates the request via the X-API-Key header or a
// bearer Authorization header and stashes the validated key metadata on
// the request context. Validation bumps the key's usage counters.
func (s *KeyService) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-API-Key")
		if secret == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				secret = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if secret == "" {
			WriteErrorResponse(w, CodedErrorf(http.StatusUnauthorized,
				"API key required: provide an API key via X-API-Key header or Authorization: Bearer <key>"))
			return
		}

		key := s.keys.Validate(r.Context(), secret)
		if key == nil {
			WriteErrorResponse(w, CodedErrorf(http.StatusUnauthorized,
				"the provided API key is invalid or has been revoked"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyContextKey{}, key)))
	})
}

func requestKey(r *http.Request) *store.APIKey {
	key, _ := r.Context().Value(keyContextKey{}).(*store.APIKey)
	return key
}

func (s *KeyService) Health(r *http.Request) (any, error) {
	return pkgapi.HealthResponse{Status: "healthy", Service: "ArchieAI API", Version: "1.0.0"}, nil
}

func (s *KeyService) GenerateKey(r *http.Request) (any, error) {
	req, err := ParseRequest[pkgapi.GenerateKeyRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Name == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "name is required")
	}
	if req.OwnerEmail == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "owner_email is required")
	}
	if err := validateEmail(req.OwnerEmail); err != nil {
		return nil, err
	}

	generated, err := s.keys.Generate(r.Context(), req.Name, req.OwnerEmail, req.Description)
	if err != nil {
		return nil, err
	}

	return pkgapi.GenerateKeyResponse{
		KeyID:      generated.Key.KeyID,
		APIKey:     generated.Secret,
		Name:       generated.Key.Name,
		OwnerEmail: generated.Key.OwnerEmail,
		CreatedAt:  generated.Key.CreatedAt,
		Message:    "Save this API key - it will not be shown again!",
	}, nil
}

func (s *KeyService) ListKeys(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[pkgapi.ListKeysQuery](r)
	if err != nil {
		return nil, err
	}
	if query.OwnerEmail == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "owner_email query parameter required")
	}

	resp := pkgapi.ListKeysResponse{Keys: []pkgapi.KeyMetadata{}}
	for _, key := range s.keys.List(r.Context(), query.OwnerEmail) {
		resp.Keys = append(resp.Keys, pkgapi.KeyMetadata{
			KeyID:       key.KeyID,
			Name:        key.Name,
			Description: key.Description,
			CreatedAt:   key.CreatedAt,
			LastUsed:    key.LastUsed,
			IsActive:    key.IsActive,
			UsageCount:  key.UsageCount,
		})
	}
	return resp, nil
}

func (s *KeyService) RevokeKey(r *http.Request) (any, error) {
	keyID := chi.URLParam(r, "key_id")

	req, err := ParseRequest[pkgapi.RevokeKeyRequest](r)
	if err != nil {
		return nil, err
	}
	if req.OwnerEmail == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "owner_email is required")
	}

	if !s.keys.Revoke(r.Context(), keyID, req.OwnerEmail) {
		return nil, CodedErrorf(http.StatusNotFound, "failed to revoke key - key not found or unauthorized")
	}
	return pkgapi.MessageResponse{Message: "API key revoked successfully"}, nil
}

// Chat answers a message synchronously for API callers.
func (s *KeyService) Chat(r *http.Request) (any, error) {
	req, err := ParseRequest[pkgapi.ChatRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Message == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "message is required")
	}

	key := requestKey(r)

	start := time.Now()
	answer, err := streaming.Collect(s.producer.Generate(r.Context(), req.Message, nil))
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	elapsed := time.Since(start).Seconds()

	s.logInteraction(r, key, req.Message, answer, elapsed)

	return pkgapi.ChatResponse{
		Response:              answer,
		GenerationTimeSeconds: roundSeconds(elapsed),
	}, nil
}

// ChatStream answers a message over SSE. The analytics record is written
// before the Done frame.
func (s *KeyService) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[pkgapi.ChatRequest](r)
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}
	if req.Message == "" {
		WriteErrorResponse(w, CodedErrorf(http.StatusBadRequest, "message is required"))
		return
	}

	key := requestKey(r)
	ctx := r.Context()

	sseHeaders(w)

	start := time.Now()
	stream := s.producer.Generate(ctx, req.Message, nil)

	//nolint:errcheck // stream failures surface as the terminal frame
	streaming.Run(ctx, w, stream, func(answer string) error {
		s.logInteraction(r, key, req.Message, answer, time.Since(start).Seconds())
		return nil
	})
}

func (s *KeyService) Usage(r *http.Request) (any, error) {
	key := requestKey(r)
	return pkgapi.UsageResponse{
		KeyID:      key.KeyID,
		Name:       key.Name,
		UsageCount: key.UsageCount,
		LastUsed:   key.LastUsed,
		CreatedAt:  key.CreatedAt,
	}, nil
}

func (s *KeyService) logInteraction(r *http.Request, key *store.APIKey, question, answer string, elapsed float64) {
	err := s.collector.LogInteraction(r.Context(), analytics.Interaction{
		SessionID:             "api_" + key.KeyID,
		UserEmail:             key.OwnerEmail,
		IPAddress:             r.RemoteAddr,
		DeviceInfo:            r.UserAgent(),
		Question:              question,
		Answer:                answer,
		GenerationTimeSeconds: elapsed,
	})
	if err != nil {
		logCollectorError(err)
	}
}

func roundSeconds(seconds float64) float64 {
	return math.Round(seconds*100) / 100
}
