package handler

import (
	"io"
	"log/slog"
	"net/http"

	"nakamura/internal/config"
	"nakamura/internal/event"
	"nakamura/internal/messaging"
	"nakamura/internal/middleware"
	"nakamura/internal/session"
	"nakamura/internal/usermanager"
)

// Deps holds the services the HTTP surface is built from.
type Deps struct {
	Config   *config.Config
	Users    *usermanager.Manager
	Messages *messaging.Service
	Events   event.Log
	Sessions session.Factory
	Health   HealthChecker
	Logger   *slog.Logger
}

// RegisterRoutes registers all HTTP routes with the provided mux.
// Identity is resolved by middleware.Identify wrapped around the mux;
// write endpoints additionally require a non-anonymous acting user.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Health and status endpoints (no auth required)
	mux.HandleFunc("GET /health", healthHandler(deps.Health, logger))
	mux.HandleFunc("GET /api/v1/status", statusHandler(deps.Config))

	if deps.Users != nil {
		um := NewUserManagerHandler(deps.Users, logger)
		mux.Handle("POST /system/userManager/user", requireUser(um.Create(false)))
		mux.Handle("POST /system/userManager/group", requireUser(um.Create(true)))
		mux.Handle("POST /system/userManager/user/{id}", requireUser(um.Update(false)))
		mux.Handle("POST /system/userManager/group/{id}", requireUser(um.Update(true)))
		mux.Handle("DELETE /system/userManager/user/{id}", requireUser(um.Delete(false)))
		mux.Handle("DELETE /system/userManager/group/{id}", requireUser(um.Delete(true)))
		mux.Handle("POST /system/userManager/group/{id}/members", requireUser(um.Members))
	}

	if deps.Sessions != nil {
		profiles := NewProfilesHandler(deps.Sessions, logger)
		mux.HandleFunc("GET /api/v1/profiles/{kind}/{id}", profiles.Get)
	}

	if deps.Messages != nil {
		messages := NewMessagesHandler(deps.Messages, logger)
		mux.Handle("POST /api/v1/messages", requireUser(messages.Send))
		mux.Handle("GET /api/v1/messages", requireUser(messages.List))
		mux.HandleFunc("/api/v1/messages", methodNotAllowedHandler("GET, POST"))
	}

	if deps.Events != nil {
		events := NewEventsHandler(deps.Events, logger)
		mux.Handle("GET /api/v1/events/{id}", requireUser(events.List))
	}
}

func requireUser(h http.HandlerFunc) http.Handler {
	return middleware.RequireUser(h)
}
