// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/favorites"
	"github.com/terraatlas/terra/pkg/errutil"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type userView struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Favorites []string `json:"favorites,omitempty"`
}

func newUserView(a *auth.Account, withFavorites bool) userView {
	v := userView{ID: a.ID.String(), Username: a.Username}
	if withFavorites {
		v.Favorites = append([]string{}, a.Favorites...)
	}
	return v
}

type favoriteView struct {
	CountryCode string `json:"countryCode"`
	CountryName string `json:"countryName,omitempty"`
	FlagURL     string `json:"flagUrl,omitempty"`
	User        string `json:"user"`
}

func newFavoriteView(e favorites.Entry) favoriteView {
	return favoriteView{
		CountryCode: e.CountryCode,
		CountryName: e.CountryName,
		FlagURL:     e.FlagURL,
		User:        e.AccountID.String(),
	}
}

type envelope struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Kind      errutil.Kind   `json:"kind,omitempty"`
	User      *userView      `json:"user,omitempty"`
	Favorite  *favoriteView  `json:"favorite,omitempty"`
	Favorites []favoriteView `json:"favorites,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}

// writeError renders err as a failure envelope. The message is the
// error's public text when it has one, otherwise the kind's message.
func writeError(w http.ResponseWriter, err error) {
	kind := errutil.KindOf(err)
	writeJSON(w, kind.Status(), envelope{
		Success: false,
		Message: publicMessage(err, kind),
		Kind:    kind,
	})
}

func publicMessage(err error, kind errutil.Kind) string {
	if kind == errutil.KindInvalidInput {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Public() != "" {
			return oopsErr.Public()
		}
	}
	return kind.Message()
}

// decodeJSON reads a bounded JSON body into dst. Malformed or oversized
// bodies fail with KindInvalidInput.
func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return oops.Code("REQUEST_TOO_LARGE").Public("Request body too large").Wrap(errutil.KindInvalidInput)
		case errors.Is(err, io.EOF):
			return oops.Code("REQUEST_EMPTY").Public("Request body is required").Wrap(errutil.KindInvalidInput)
		default:
			h.logger.DebugContext(r.Context(), "malformed request body", "error", err)
			return oops.Code("REQUEST_MALFORMED").Public("Malformed JSON body").Wrap(errutil.KindInvalidInput)
		}
	}
	return nil
}
