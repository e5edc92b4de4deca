package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"nakamura/internal/auth"
	"nakamura/internal/messaging"
	"nakamura/internal/middleware"
)

// MessagesHandler sends and lists internal messages of the acting user.
type MessagesHandler struct {
	service *messaging.Service
	logger  *slog.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(service *messaging.Service, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{service: service, logger: logger}
}

type sendMessageRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Send handles POST /api/v1/messages
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	msg, err := h.service.Send(r.Context(), messaging.Message{
		From:    middleware.GetIdentity(r.Context()).UserID,
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrNoRecipients):
			writeError(w, http.StatusBadRequest, "at least one recipient is required")
		case errors.Is(err, messaging.ErrUnknownRecipient):
			writeError(w, http.StatusBadRequest, "unknown recipient")
		case errors.Is(err, messaging.ErrUnknownSender):
			auth.WriteForbidden(w)
		default:
			h.logger.Error("failed to send message", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/messages?label=inbox
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		label = messaging.LabelInbox
	}

	messages, err := h.service.List(r.Context(), middleware.GetIdentity(r.Context()).UserID, label)
	if err != nil {
		if errors.Is(err, messaging.ErrInvalidLabel) {
			writeError(w, http.StatusBadRequest, "label must be inbox, sent or outbox")
			return
		}
		h.logger.Error("failed to list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}
