// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package api serves the account and favorites operations over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"
)

// Options configures NewRouter.
type Options struct {
	// ClientOrigin is the single origin allowed to make credentialed
	// cross-origin requests. Empty disables CORS handling.
	ClientOrigin string
	Tokens       Tokens
	Observer     RequestObserver
	Logger       *slog.Logger
}

// NewRouter builds the HTTP handler for ops.
func NewRouter(ops Operations, opts Options) (http.Handler, error) {
	if ops == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("operations are required")
	}
	if opts.Tokens == nil {
		return nil, oops.Code("API_INVALID_CONFIG").Errorf("token transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{ops: ops, tokens: opts.Tokens, logger: logger}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(instrument(logger, opts.Observer))
	r.Use(chiMiddleware.Recoverer)
	if opts.ClientOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{opts.ClientOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, Message: "Method not allowed"})
	})

	r.Get("/", h.health)

	r.Route("/api/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Post("/favorites", h.addFavorite)
		})
		r.Get("/me", h.me)
		r.Get("/favorites", h.listFavorites)
		r.Delete("/favorites/{code}", h.removeFavorite)
		// Older clients send the account ID too; the session decides whose
		// favorites change, so it is ignored.
		r.Delete("/favorites/{id}/{code}", h.removeFavorite)
	})

	return r, nil
}
