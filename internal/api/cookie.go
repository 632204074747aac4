// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package api

import (
	"net/http"
	"time"

	"github.com/terraatlas/terra/internal/auth"
)

// CookieTransport carries the session token in an HttpOnly cookie.
type CookieTransport struct {
	name   string
	secure bool
	now    func() time.Time
}

// NewCookieTransport creates a CookieTransport for the named cookie.
func NewCookieTransport(name string, secure bool) *CookieTransport {
	return &CookieTransport{name: name, secure: secure, now: time.Now}
}

// Token returns the session token from the request cookie, or "".
func (c *CookieTransport) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetToken writes the session cookie. It expires with the session.
func (c *CookieTransport) SetToken(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(c.now()).Seconds())
	if maxAge <= 0 {
		c.ClearToken(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearToken tells the client to drop the session cookie.
func (c *CookieTransport) ClearToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

var (
	_ auth.TokenExtractor = (*CookieTransport)(nil)
	_ auth.TokenSetter    = (*CookieTransport)(nil)
)
