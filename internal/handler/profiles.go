package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"nakamura/internal/acl"
	"nakamura/internal/auth"
	"nakamura/internal/authorizable"
	"nakamura/internal/content"
	"nakamura/internal/middleware"
	"nakamura/internal/personal"
	"nakamura/internal/session"
)

// ProfilesHandler serves public profile nodes subject to access control.
type ProfilesHandler struct {
	sessions session.Factory
	logger   *slog.Logger
}

// NewProfilesHandler creates a new profiles handler.
func NewProfilesHandler(sessions session.Factory, logger *slog.Logger) *ProfilesHandler {
	return &ProfilesHandler{sessions: sessions, logger: logger}
}

type profileResponse struct {
	Path       string              `json:"path"`
	Properties map[string][]string `json:"properties"`
}

// Get handles GET /api/v1/profiles/{kind}/{id}
func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	var isGroup bool
	switch r.PathValue("kind") {
	case "user":
	case "group":
		isGroup = true
	default:
		writeError(w, http.StatusBadRequest, "kind must be user or group")
		return
	}

	id := r.PathValue("id")
	if err := authorizable.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid authorizable ID")
		return
	}

	sess, err := h.sessions.Begin(r.Context())
	if err != nil {
		h.logger.Error("failed to open session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read profile")
		return
	}
	defer func() {
		_ = sess.Rollback()
	}()

	path := personal.ProfilePath(id, isGroup)
	node, err := sess.Content.GetNode(r.Context(), path)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		h.logger.Error("failed to load profile", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read profile")
		return
	}

	principal := middleware.GetIdentity(r.Context()).Principal()
	decision, err := acl.NewApplier(sess.ACL, sess.Content).Evaluate(r.Context(), path, principal, acl.Read)
	if err != nil {
		h.logger.Error("failed to evaluate access", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read profile")
		return
	}
	if decision != acl.Allow {
		auth.WriteForbidden(w)
		return
	}

	props := make(map[string][]string, len(node.Properties))
	for name, p := range node.Properties {
		props[name] = p.Values
	}

	writeJSON(w, http.StatusOK, profileResponse{Path: path, Properties: props})
}
