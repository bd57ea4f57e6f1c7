package api

import (
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

// SessionService serves the cookie-authenticated web surface: login,
// session management, and the ask/stream endpoints.
type SessionService struct {
	users     *store.UserStore
	sessions  *store.SessionStore
	producer  llm.Producer
	collector analytics.Collector
}

func NewSessionService(users *store.UserStore, sessions *store.SessionStore, producer llm.Producer, collector analytics.Collector) *SessionService {
	return &SessionService{
		users:     users,
		sessions:  sessions,
		producer:  producer,
		collector: collector,
	}
}

func (s *SessionService) AddRoutes(r chi.Router) {
	r.Post("/chats", s.LoginOrRegister)
	r.Route("/api", func(r chi.Router) {
		r.Post("/archie", RestHandler(s.Ask))
		r.Post("/archie/stream", s.AskStream)
		r.Post("/sessions/new", s.NewSession)
		r.Post("/sessions/switch/{session_id}", s.SwitchSession)
		r.Get("/sessions/history", RestHandler(s.History))
		r.Get("/sessions/list", RestHandler(s.ListSessions))
		r.Get("/sessions/{session_id}", RestHandler(s.GetSession))
		r.Delete("/sessions/{session_id}", RestHandler(s.DeleteSession))
	})
}

// LoginOrRegister authenticates the account, creating it on first sight of
// the email. Either way a fresh session is minted and both credentials are
// set as cookies.
func (s *SessionService) LoginOrRegister(w http.ResponseWriter, r *http.Request) {
	form, err := ParseFormRequest[pkgapi.LoginForm](r)
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}

	email := strings.TrimSpace(form.Email)
	if err := validateEmail(email); err != nil {
		WriteErrorResponse(w, err)
		return
	}
	if form.Password == "" {
		WriteErrorResponse(w, CodedErrorf(http.StatusBadRequest, "password is required"))
		return
	}

	ctx := r.Context()
	if !s.users.Authenticate(ctx, email, form.Password) {
		created, err := s.users.CreateUser(ctx, email, form.Password, r.RemoteAddr, r.UserAgent())
		if err != nil {
			WriteErrorResponse(w, err)
			return
		}
		if !created {
			// email already registered with a different password
			WriteErrorResponse(w, CodedErrorf(http.StatusUnauthorized, "invalid credentials"))
			return
		}
	}

	sessionID, err := s.sessions.CreateSession(ctx, email)
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}

	setSessionCookie(w, "session_id", sessionID, http.SameSiteStrictMode)
	setSessionCookie(w, "user_email", email, http.SameSiteStrictMode)
	WriteJsonResponse(w, pkgapi.SessionResponse{SessionID: sessionID})
}

func (s *SessionService) NewSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.sessions.CreateSession(r.Context(), cookieValue(r, "user_email"))
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}

	setSessionCookie(w, "session_id", sessionID, http.SameSiteStrictMode)
	WriteJsonResponse(w, pkgapi.SessionResponse{SessionID: sessionID})
}

func (s *SessionService) SwitchSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	session := s.sessions.GetSession(r.Context(), sessionID)
	if session == nil {
		WriteErrorResponse(w, CodedErrorf(http.StatusNotFound, "session not found"))
		return
	}
	if session.OwnerEmail != cookieValue(r, "user_email") {
		WriteErrorResponse(w, CodedErrorf(http.StatusForbidden, "unauthorized"))
		return
	}

	setSessionCookie(w, "session_id", sessionID, http.SameSiteLaxMode)
	WriteJsonResponse(w, pkgapi.MessageResponse{Message: "Session switched"})
}

func (s *SessionService) History(r *http.Request) (any, error) {
	sessionID := cookieValue(r, "session_id")
	if sessionID == "" {
		return nil, CodedErrorf(http.StatusUnauthorized, "no session found")
	}

	history := s.sessions.GetConversationHistory(r.Context(), sessionID)
	resp := pkgapi.SessionHistoryResponse{History: []pkgapi.Message{}}
	for _, msg := range history {
		resp.History = append(resp.History, pkgapi.Message{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return resp, nil
}

func (s *SessionService) ListSessions(r *http.Request) (any, error) {
	email := cookieValue(r, "user_email")
	if email == "" {
		return nil, CodedErrorf(http.StatusUnauthorized, "not logged in")
	}

	resp := pkgapi.SessionListResponse{Sessions: []pkgapi.SessionPreview{}}
	for _, preview := range s.sessions.ListSessionsWithPreview(r.Context(), email) {
		resp.Sessions = append(resp.Sessions, pkgapi.SessionPreview{
			SessionID:    preview.SessionID,
			CreatedAt:    preview.CreatedAt,
			Preview:      preview.Preview,
			MessageCount: preview.MessageCount,
		})
	}
	return resp, nil
}

// authorizeSession allows access when the requester owns the session or is
// currently attached to it via the session cookie.
func (s *SessionService) authorizeSession(r *http.Request, session *store.Session) error {
	if session.OwnerEmail == cookieValue(r, "user_email") {
		return nil
	}
	if session.SessionID == cookieValue(r, "session_id") {
		return nil
	}
	return CodedErrorf(http.StatusForbidden, "unauthorized")
}

func (s *SessionService) GetSession(r *http.Request) (any, error) {
	session := s.sessions.GetSession(r.Context(), chi.URLParam(r, "session_id"))
	if session == nil {
		return nil, CodedErrorf(http.StatusNotFound, "session not found")
	}
	if err := s.authorizeSession(r, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) DeleteSession(r *http.Request) (any, error) {
	sessionID := chi.URLParam(r, "session_id")

	session := s.sessions.GetSession(r.Context(), sessionID)
	if session == nil {
		return nil, CodedErrorf(http.StatusNotFound, "session not found")
	}
	if err := s.authorizeSession(r, session); err != nil {
		return nil, err
	}

	if !s.sessions.DeleteSession(r.Context(), sessionID, cookieValue(r, "user_email")) {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete session")
	}
	return pkgapi.MessageResponse{Message: "Session deleted"}, nil
}

// Ask answers a question synchronously. Generation failures are folded
// into the answer text rather than an error status, matching the web UI's
// expectations. The exchange is persisted and logged when a session is
// attached.
func (s *SessionService) Ask(r *http.Request) (any, error) {
	req, err := ParseRequest[pkgapi.AskRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Question == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "question is required")
	}

	ctx := r.Context()
	sessionID := cookieValue(r, "session_id")
	userEmail := cookieValue(r, "user_email")

	var history []store.Message
	if sessionID != "" {
		history = s.sessions.GetConversationHistory(ctx, sessionID)
	}

	start := time.Now()
	answer, err := streaming.Collect(s.producer.Generate(ctx, req.Question, history))
	if err != nil {
		answer = "Error: " + err.Error()
	}
	elapsed := time.Since(start).Seconds()

	if sessionID != "" {
		if err := s.sessions.AddMessage(ctx, sessionID, "user", req.Question); err != nil {
			return nil, err
		}
		if err := s.sessions.AddMessage(ctx, sessionID, "assistant", answer); err != nil {
			return nil, err
		}
	}

	s.logInteraction(r, sessionID, userEmail, req.Question, answer, elapsed)

	return pkgapi.AskResponse{Answer: answer, GenerationTimeSeconds: roundSeconds(elapsed)}, nil
}

// AskStream answers a question over SSE. The transcript and analytics
// record are written before the Done frame; a failed generation emits one
// Error frame and persists nothing.
func (s *SessionService) AskStream(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[pkgapi.AskRequest](r)
	if err != nil {
		WriteErrorResponse(w, err)
		return
	}
	if req.Question == "" {
		WriteErrorResponse(w, CodedErrorf(http.StatusBadRequest, "question is required"))
		return
	}

	ctx := r.Context()
	sessionID := cookieValue(r, "session_id")
	userEmail := cookieValue(r, "user_email")

	var history []store.Message
	if sessionID != "" {
		history = s.sessions.GetConversationHistory(ctx, sessionID)
	}

	sseHeaders(w)

	start := time.Now()
	stream := s.producer.Generate(ctx, req.Question, history)

	//nolint:errcheck // stream failures surface as the terminal frame
	streaming.Run(ctx, w, stream, func(answer string) error {
		if sessionID != "" {
			if err := s.sessions.AddMessage(ctx, sessionID, "user", req.Question); err != nil {
				return err
			}
			if err := s.sessions.AddMessage(ctx, sessionID, "assistant", answer); err != nil {
				return err
			}
		}
		s.logInteraction(r, sessionID, userEmail, req.Question, answer, time.Since(start).Seconds())
		return nil
	})
}

func (s *SessionService) logInteraction(r *http.Request, sessionID, userEmail, question, answer string, elapsed float64) {
	if sessionID == "" {
		sessionID = "no_session"
	}
	err := s.collector.LogInteraction(r.Context(), analytics.Interaction{
		SessionID:             sessionID,
		UserEmail:             userEmail,
		IPAddress:             r.RemoteAddr,
		DeviceInfo:            r.UserAgent(),
		Question:              question,
		Answer:                answer,
		GenerationTimeSeconds: elapsed,
	})
	if err != nil {
		// analytics is best-effort, never fails the request
		logCollectorError(err)
	}
}
