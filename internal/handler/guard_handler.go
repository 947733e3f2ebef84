package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"game-guard/internal/auth"
	"game-guard/internal/model"
	"game-guard/internal/ratelimit"
	"game-guard/internal/security"
	"game-guard/internal/util"
)

const adminKeyHeader = "X-Admin-Key"

// GuardHandler exposes the guard's decisions over HTTP.
type GuardHandler struct {
	mw      *security.Middleware
	guard   *auth.Guard
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

func NewGuardHandler(mw *security.Middleware, guard *auth.Guard, limiter *ratelimit.Limiter, logger *zap.Logger) *GuardHandler {
	return &GuardHandler{
		mw:      mw,
		guard:   guard,
		limiter: limiter,
		logger:  logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(err error, message string) Response {
	return Response{Success: false, Error: err.Error(), Message: message}
}

// RegisterRoutes mounts the guard API.
func (h *GuardHandler) RegisterRoutes(router chi.Router) {
	router.Route("/guard", func(r chi.Router) {
		r.Post("/check", h.Check)
		r.Post("/attempts", h.RecordAttempt)
		r.Get("/cooldown", h.Cooldown)
		r.Get("/headers", h.Headers)

		r.Post("/sessions", h.CreateSession)
		r.Post("/sessions/{sessionID}/verify", h.VerifySession)

		// administrative, authorized via X-Admin-Key
		r.Delete("/suspicious/{actorID}", h.ClearSuspicious)
		r.Delete("/limits/{actorID}/{action}", h.ResetLimit)
	})
}

type checkRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Check runs the composite security check for one attempted action.
func (h *GuardHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Action == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("action is required"), "Action is required")
		return
	}

	result := h.mw.PerformSecurityCheck(ctx, req.Action, req.Payload)
	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Security check evaluated"))

	h.logger.Info("Security check via HTTP",
		util.String("action", req.Action),
		util.Bool("allowed", result.Allowed),
		util.String("reason", result.Reason),
		util.Duration("duration", time.Since(start)),
	)
}

type attemptRequest struct {
	Action string `json:"action"`
}

// RecordAttempt consumes quota after the caller actually performed the
// action.
func (h *GuardHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Action == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("action is required"), "Action is required")
		return
	}

	actorID, ok := h.guard.ActorID(ctx)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, security.ErrNotAuthenticated, "Authentication required")
		return
	}

	if err := h.limiter.RecordAttempt(ctx, actorID, req.Action); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to record attempt")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "Attempt recorded"))
}

// Cooldown reports the actor's standing for one action without consuming
// an attempt.
func (h *GuardHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	action := r.URL.Query().Get("action")
	if action == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("action is required"), "Action query parameter is required")
		return
	}

	actorID, ok := h.guard.ActorID(ctx)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, security.ErrNotAuthenticated, "Authentication required")
		return
	}

	info := h.limiter.GetCooldownInfo(ctx, actorID, action)
	h.respondWithJSON(w, http.StatusOK, successResponse(info, "Cooldown info retrieved"))
}

// Headers returns the outbound security headers for the current session.
func (h *GuardHandler) Headers(w http.ResponseWriter, r *http.Request) {
	headers := h.mw.SecurityHeaders(r.Context())
	h.respondWithJSON(w, http.StatusOK, successResponse(headers, "Security headers built"))
}

type createSessionRequest struct {
	GameID string `json:"game_id"`
}

// CreateSession issues a provably-fair game session.
func (h *GuardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.GameID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("game_id is required"), "Game ID is required")
		return
	}

	session, err := h.mw.CreateGameSession(ctx, req.GameID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to create game session")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(session, "Game session created"))
}

// VerifySession checks a claimed game result against its session.
func (h *GuardHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var result model.GameResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	verdict := h.mw.VerifyGameResult(ctx, sessionID, result)
	h.respondWithJSON(w, http.StatusOK, successResponse(verdict, "Game result verified"))

	if !verdict.IsValid {
		h.logger.Warn("Game result rejected",
			util.String("session_id", sessionID),
			util.String("reason", verdict.Reason),
		)
	}
}

// ClearSuspicious wipes an actor's suspicious-activity ledger.
func (h *GuardHandler) ClearSuspicious(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := chi.URLParam(r, "actorID")

	if err := h.mw.ClearSuspiciousActivities(ctx, actorID, r.Header.Get(adminKeyHeader)); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to clear suspicious activities")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Suspicious activities cleared"))
}

// ResetLimit evicts one (actor, action) rate-limit record. Admin only: the
// limiter itself has no notion of privilege, so the check lives here.
func (h *GuardHandler) ResetLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := chi.URLParam(r, "actorID")
	action := chi.URLParam(r, "action")

	if !h.mw.VerifyAdminKey(r.Header.Get(adminKeyHeader)) {
		h.respondWithError(w, http.StatusForbidden, security.ErrAdminUnauthorized, "Admin key required")
		return
	}

	if err := h.limiter.ResetRateLimit(ctx, actorID, action); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to reset rate limit")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Rate limit reset"))
}

// Helper Methods

func (h *GuardHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *GuardHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

func (h *GuardHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, security.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, security.ErrAdminUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
