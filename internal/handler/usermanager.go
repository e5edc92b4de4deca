package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"nakamura/internal/authorizable"
	"nakamura/internal/change"
	"nakamura/internal/middleware"
	"nakamura/internal/usermanager"
)

// UserManagerHandler exposes user and group administration.
type UserManagerHandler struct {
	manager *usermanager.Manager
	logger  *slog.Logger
}

// NewUserManagerHandler creates a new user-manager handler.
func NewUserManagerHandler(manager *usermanager.Manager, logger *slog.Logger) *UserManagerHandler {
	return &UserManagerHandler{manager: manager, logger: logger}
}

type authorizableResponse struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	Properties map[string][]string `json:"properties"`
	Members    []string            `json:"members,omitempty"`
	CreatedAt  string              `json:"created_at,omitempty"`
	UpdatedAt  string              `json:"updated_at,omitempty"`
}

type resultResponse struct {
	Authorizable *authorizableResponse  `json:"authorizable,omitempty"`
	Changes      []change.Modification `json:"changes"`
}

func toAuthorizableResponse(a *authorizable.Authorizable) *authorizableResponse {
	if a == nil {
		return nil
	}
	props := a.Properties
	if props == nil {
		props = map[string][]string{}
	}
	return &authorizableResponse{
		ID:         a.ID,
		Kind:       a.Kind(),
		Properties: props,
		Members:    a.Members,
		CreatedAt:  formatTime(a.CreatedAt),
		UpdatedAt:  formatTime(a.UpdatedAt),
	}
}

func toResultResponse(res *usermanager.Result) resultResponse {
	changes := res.Changes
	if changes == nil {
		changes = []change.Modification{}
	}
	return resultResponse{
		Authorizable: toAuthorizableResponse(res.Authorizable),
		Changes:      changes,
	}
}

type createRequest struct {
	ID         string              `json:"id"`
	Properties map[string][]string `json:"properties"`
	Members    []string            `json:"members"`
}

// Create handles POST /system/userManager/{user|group}
func (h *UserManagerHandler) Create(isGroup bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}

		actingUser := middleware.GetIdentity(r.Context()).UserID
		cr := usermanager.CreateRequest{ID: req.ID, Properties: req.Properties, Members: req.Members}

		var (
			res *usermanager.Result
			err error
		)
		if isGroup {
			res, err = h.manager.CreateGroup(r.Context(), actingUser, cr)
		} else {
			res, err = h.manager.CreateUser(r.Context(), actingUser, cr)
		}
		if err != nil {
			h.writeManagerError(w, err, "create")
			return
		}

		writeJSON(w, http.StatusCreated, toResultResponse(res))
	}
}

type updateRequest struct {
	Set    map[string][]string `json:"set"`
	Remove []string            `json:"remove"`
}

// Update handles POST /system/userManager/{user|group}/{id}
func (h *UserManagerHandler) Update(isGroup bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}

		actingUser := middleware.GetIdentity(r.Context()).UserID
		id := r.PathValue("id")
		ur := usermanager.UpdateRequest{Set: req.Set, Remove: req.Remove}

		var (
			res *usermanager.Result
			err error
		)
		if isGroup {
			res, err = h.manager.UpdateGroup(r.Context(), actingUser, id, ur)
		} else {
			res, err = h.manager.UpdateUser(r.Context(), actingUser, id, ur)
		}
		if err != nil {
			h.writeManagerError(w, err, "update")
			return
		}

		writeJSON(w, http.StatusOK, toResultResponse(res))
	}
}

// Delete handles DELETE /system/userManager/{user|group}/{id}
func (h *UserManagerHandler) Delete(isGroup bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actingUser := middleware.GetIdentity(r.Context()).UserID

		res, err := h.manager.Delete(r.Context(), actingUser, r.PathValue("id"), isGroup)
		if err != nil {
			h.writeManagerError(w, err, "delete")
			return
		}

		writeJSON(w, http.StatusOK, toResultResponse(res))
	}
}

type membersRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// Members handles POST /system/userManager/group/{id}/members
// Additions are applied before removals, each in its own session.
func (h *UserManagerHandler) Members(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Add) == 0 && len(req.Remove) == 0 {
		writeError(w, http.StatusBadRequest, "add or remove is required")
		return
	}

	actingUser := middleware.GetIdentity(r.Context()).UserID
	groupID := r.PathValue("id")

	combined := &usermanager.Result{}
	if len(req.Add) > 0 {
		res, err := h.manager.AddMembers(r.Context(), actingUser, groupID, req.Add)
		if err != nil {
			h.writeManagerError(w, err, "add members to")
			return
		}
		combined.Authorizable = res.Authorizable
		combined.Changes = append(combined.Changes, res.Changes...)
	}
	if len(req.Remove) > 0 {
		res, err := h.manager.RemoveMembers(r.Context(), actingUser, groupID, req.Remove)
		if err != nil {
			h.writeManagerError(w, err, "remove members from")
			return
		}
		combined.Authorizable = res.Authorizable
		combined.Changes = append(combined.Changes, res.Changes...)
	}

	writeJSON(w, http.StatusOK, toResultResponse(combined))
}

func (h *UserManagerHandler) writeManagerError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, usermanager.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid authorizable ID")
	case errors.Is(err, usermanager.ErrInvalidMember):
		writeError(w, http.StatusBadRequest, "invalid group member")
	case errors.Is(err, usermanager.ErrNotFound):
		writeError(w, http.StatusNotFound, "authorizable not found")
	case errors.Is(err, usermanager.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "authorizable already exists")
	default:
		h.logger.Error("user manager request failed", "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+action+" authorizable")
	}
}
