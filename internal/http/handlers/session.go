package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/http/dto"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

type SessionHandler struct {
	sessions *session.Registry
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Registry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// Login stores the credentials obtained by the UI's login flow.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	sid := middleware.GetSessionID(r.Context())

	var req dto.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	if _, err := h.sessions.Start(r.Context(), sid, req.Token, req.User); err != nil {
		h.logger.Warn("start session failed", zap.String("session_id", sid), zap.Error(err))
		writeBadRequest(w, r, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, dto.SessionResponse{SessionID: sid, Authenticated: true})
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sid := middleware.GetSessionID(r.Context())
	s := h.sessions.Get(sid)
	writeJSON(w, http.StatusOK, dto.SessionResponse{SessionID: sid, Authenticated: s.Gate.HasSession(r.Context())})
}

// Logout clears credentials and discards the cart.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid := middleware.GetSessionID(r.Context())
	if err := h.sessions.End(r.Context(), sid); err != nil {
		h.logger.Error("end session failed", zap.String("session_id", sid), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
