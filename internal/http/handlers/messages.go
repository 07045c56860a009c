package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ktwhotel/concierge/internal/dispatch"
	"github.com/ktwhotel/concierge/pkg/logging"
)

const (
	maxMessageBody  = 64 << 10
	maxMessageRunes = 2000
)

// Dispatcher runs one message through the conversation engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, in dispatch.Inbound) (dispatch.Outcome, error)
}

// MessagesHandler serves synchronous dispatch for the web chat widget and
// scripted tests.
type MessagesHandler struct {
	dispatcher Dispatcher
	tenantID   string
	logger     *logging.Logger
}

func NewMessagesHandler(dispatcher Dispatcher, tenantID string, logger *logging.Logger) *MessagesHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessagesHandler{dispatcher: dispatcher, tenantID: tenantID, logger: logger}
}

type MessageRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text"`
}

type MessageResponse struct {
	Reply   string `json:"reply"`
	State   string `json:"state"`
	Handled bool   `json:"handled"`
	Parked  bool   `json:"parked,omitempty"`
	Resumed bool   `json:"resumed,omitempty"`
}

// Post handles POST /v1/tenants/{tenantID}/messages.
func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "tenantID") != h.tenantID {
		writeError(w, http.StatusNotFound, "unknown tenant")
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if utf8.RuneCountInString(req.Text) > maxMessageRunes {
		writeError(w, http.StatusRequestEntityTooLarge, "text too long")
		return
	}

	out, err := h.dispatcher.Dispatch(r.Context(), dispatch.Inbound{
		UserID:      req.UserID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Text:        req.Text,
	})
	if err != nil {
		h.logger.Error("synchronous dispatch failed", "error", err, "user_id", req.UserID)
		writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Reply: dispatch.RetryReply()})
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Reply:   out.Reply,
		State:   string(out.State),
		Handled: out.Handled,
		Parked:  out.Parked,
		Resumed: out.Resumed,
	})
}
