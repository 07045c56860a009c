package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ktwhotel/concierge/internal/http/middleware"
	"github.com/ktwhotel/concierge/internal/session"
	"github.com/ktwhotel/concierge/pkg/logging"
)

// SessionStore is the slice of session.Store the admin endpoints use.
type SessionStore interface {
	List(ctx context.Context) ([]*session.Session, error)
	Lookup(ctx context.Context, userID string) (*session.Session, error)
	Delete(ctx context.Context, userID string) error
	WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

// AdminSessionsHandler lets front-desk staff inspect and reset conversations.
type AdminSessionsHandler struct {
	store  SessionStore
	logger *logging.Logger
}

func NewAdminSessionsHandler(store SessionStore, logger *logging.Logger) *AdminSessionsHandler {
	if store == nil {
		panic("handlers: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSessionsHandler{store: store, logger: logger}
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	State         string    `json:"state"`
	Flow          string    `json:"flow,omitempty"`
	PendingIntent string    `json:"pending_intent,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SessionsListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

// List handles GET /admin/sessions. ?flow=booking narrows the result.
func (h *AdminSessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("admin: list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	flowFilter := strings.TrimSpace(r.URL.Query().Get("flow"))
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		if flowFilter != "" && string(s.Flow()) != flowFilter {
			continue
		}
		row := SessionSummary{
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			State:       string(s.State),
			Flow:        string(s.Flow()),
			UpdatedAt:   s.UpdatedAt,
		}
		if s.Pending != nil {
			row.PendingIntent = string(s.Pending.Intent)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	writeJSON(w, http.StatusOK, SessionsListResponse{Sessions: out, Total: len(out)})
}

// Get handles GET /admin/sessions/{userID}.
func (h *AdminSessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sess, err := h.store.Lookup(r.Context(), userID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, session.ErrCorrupt):
		writeError(w, http.StatusUnprocessableEntity, "session record is corrupt")
		return
	case err != nil:
		h.logger.Error("admin: get session failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /admin/sessions/{userID}; the guest starts over idle.
func (h *AdminSessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	err := h.store.WithLock(r.Context(), userID, func(ctx context.Context) error {
		return h.store.Delete(ctx, userID)
	})
	if err != nil {
		h.logger.Error("admin: delete session failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	actor := ""
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		actor = claims.Subject
	}
	h.logger.Info("admin reset session", "user_id", userID, "actor", actor)
	w.WriteHeader(http.StatusNoContent)
}
