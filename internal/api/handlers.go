// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/core"
	"github.com/terraatlas/terra/internal/favorites"
	"github.com/terraatlas/terra/pkg/errutil"
)

// Operations is the core surface the handlers drive.
type Operations interface {
	Register(ctx context.Context, username, password string) (core.Grant, error)
	Login(ctx context.Context, username, password string) (core.Grant, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*auth.Account, error)
	AddFavorite(ctx context.Context, token, code string) (favorites.Entry, error)
	ListFavorites(ctx context.Context, token string) ([]favorites.Entry, error)
	RemoveFavorite(ctx context.Context, token, code string) error
}

// Tokens reads and writes the session token on HTTP messages.
type Tokens interface {
	auth.TokenExtractor
	auth.TokenSetter
}

type handlers struct {
	ops    Operations
	tokens Tokens
	logger *slog.Logger
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type favoriteRequest struct {
	CountryCode string `json:"countryCode"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // client may have gone away
	w.Write([]byte("API is running..."))
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	grant, err := h.ops.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.tokens.SetToken(w, grant.Token, grant.ExpiresAt)
	user := newUserView(grant.Account, false)
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "User registered", User: &user})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	grant, err := h.ops.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	// A fresh login replaces whatever session the client held; the old
	// one is left to expire or be destroyed by its own logout.
	h.tokens.SetToken(w, grant.Token, grant.ExpiresAt)
	user := newUserView(grant.Account, false)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Login successful", User: &user})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.ops.Logout(r.Context(), h.tokens.Token(r)); err != nil {
		writeError(w, err)
		return
	}
	h.tokens.ClearToken(w)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out successfully"})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.ops.CurrentUser(r.Context(), h.tokens.Token(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user := newUserView(account, true)
	writeJSON(w, http.StatusOK, envelope{Success: true, User: &user})
}

func (h *handlers) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.ops.AddFavorite(r.Context(), h.tokens.Token(r), req.CountryCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fav := newFavoriteView(entry)
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Favorite added", Favorite: &fav})
}

func (h *handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ops.ListFavorites(r.Context(), h.tokens.Token(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]favoriteView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newFavoriteView(e))
	}
	// Always emit the array, even when empty.
	writeJSON(w, http.StatusOK, struct {
		Success   bool           `json:"success"`
		Favorites []favoriteView `json:"favorites"`
	}{Success: true, Favorites: views})
}

func (h *handlers) removeFavorite(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.ops.RemoveFavorite(r.Context(), h.tokens.Token(r), code); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Favorite removed"})
}

// fail writes err and drops a session cookie the gate has rejected.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errutil.IsKind(err, errutil.KindNotAuthenticated) && h.tokens.Token(r) != "" {
		h.tokens.ClearToken(w)
	}
	writeError(w, err)
}
