// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraatlas/terra/internal/api"
	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/auth/authtest"
	"github.com/terraatlas/terra/internal/core"
	"github.com/terraatlas/terra/internal/country"
	"github.com/terraatlas/terra/internal/favorites"
	"github.com/terraatlas/terra/pkg/errutil"
)

const cookieName = "terra.sid"

type observed struct {
	route  string
	status int
}

type recordingObserver struct {
	mu       sync.Mutex
	requests []observed
}

func (o *recordingObserver) ObserveRequest(route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, observed{route: route, status: status})
}

func (o *recordingObserver) routes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.requests))
	for _, r := range o.requests {
		out = append(out, r.route)
	}
	return out
}

type apiEnv struct {
	handler  http.Handler
	server   *httptest.Server
	client   *http.Client
	observer *recordingObserver
}

func newEnv(t *testing.T, configure ...func(*api.Options)) *apiEnv {
	t.Helper()
	accounts := authtest.NewAccountStore()
	sessions := authtest.NewSessionStore()

	authSvc, err := auth.NewService(accounts, sessions, authtest.NewHasher())
	require.NoError(t, err)
	gate, err := auth.NewGate(authSvc, accounts, nil)
	require.NoError(t, err)

	lookup := country.LookupFunc(func(_ context.Context, code string) (country.Country, error) {
		switch code {
		case "US":
			return country.Country{Code: "US", Name: "United States", FlagURL: "https://flagcdn.com/us.svg"}, nil
		case "FR":
			return country.Country{Code: "FR", Name: "France", FlagURL: "https://flagcdn.com/fr.svg"}, nil
		}
		return country.Country{}, country.ErrNotFound
	})
	favs, err := favorites.NewManager(accounts, lookup)
	require.NoError(t, err)
	svc, err := core.NewService(authSvc, gate, accounts, favs, nil)
	require.NoError(t, err)

	observer := &recordingObserver{}
	opts := api.Options{
		ClientOrigin: "http://localhost:5173",
		Tokens:       api.NewCookieTransport(cookieName, false),
		Observer:     observer,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	handler, err := api.NewRouter(svc, opts)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiEnv{handler: handler, server: srv, client: &http.Client{Jar: jar}, observer: observer}
}

type response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	User      *struct {
		ID        string   `json:"id"`
		Username  string   `json:"username"`
		Favorites []string `json:"favorites"`
	} `json:"user"`
	Favorite *struct {
		CountryCode string `json:"countryCode"`
		CountryName string `json:"countryName"`
		FlagURL     string `json:"flagUrl"`
		User        string `json:"user"`
	} `json:"favorite"`
	Favorites []struct {
		CountryCode string `json:"countryCode"`
		CountryName string `json:"countryName"`
	} `json:"favorites"`
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (*http.Response, response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := api.NewRouter(nil, api.Options{Tokens: api.NewCookieTransport(cookieName, false)})
	errutil.AssertErrorCode(t, err, "API_INVALID_CONFIG")

	_, err = api.NewRouter(&core.Service{}, api.Options{})
	errutil.AssertErrorCode(t, err, "API_INVALID_CONFIG")
}

func TestRouter_Health(t *testing.T) {
	env := newEnv(t)
	resp, err := env.client.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "API is running...", buf.String())
}

func TestRouter_FavoritesLifecycle(t *testing.T) {
	env := newEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/users/register", map[string]string{
		"username": "alice", "password": "secret123", "email": "ignored@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "User registered", body.Message)
	require.NotNil(t, body.User)
	assert.Equal(t, "alice", body.User.Username)
	userID := body.User.ID

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Positive(t, cookie.MaxAge)

	resp, body = env.do(t, http.MethodPost, "/api/users/favorites", map[string]string{"countryCode": "us"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Favorite added", body.Message)
	require.NotNil(t, body.Favorite)
	assert.Equal(t, "US", body.Favorite.CountryCode)
	assert.Equal(t, "United States", body.Favorite.CountryName)
	assert.Equal(t, userID, body.Favorite.User)

	resp, body = env.do(t, http.MethodPost, "/api/users/favorites", map[string]string{"countryCode": "US"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, "Country already in favorites", body.Message)
	assert.Equal(t, "ALREADY_FAVORITED", body.Kind)

	resp, _ = env.do(t, http.MethodPost, "/api/users/favorites", map[string]string{"countryCode": "FR"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/users/favorites", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Favorites, 2)
	assert.Equal(t, "US", body.Favorites[0].CountryCode)
	assert.Equal(t, "France", body.Favorites[1].CountryName)

	resp, body = env.do(t, http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body.User)
	assert.Equal(t, []string{"US", "FR"}, body.User.Favorites)

	resp, body = env.do(t, http.MethodDelete, "/api/users/favorites/US", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Favorite removed", body.Message)

	resp, body = env.do(t, http.MethodDelete, "/api/users/favorites/"+userID+"/FR", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Favorite removed", body.Message)

	resp, body = env.do(t, http.MethodDelete, "/api/users/favorites/FR", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Country not in favorites", body.Message)

	resp, body = env.do(t, http.MethodGet, "/api/users/favorites", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Empty(t, body.Favorites)

	assert.Contains(t, env.observer.routes(), "/api/users/favorites/{code}")
	assert.Contains(t, env.observer.routes(), "/api/users/favorites/{id}/{code}")
}

func TestRouter_LoginAndLogout(t *testing.T) {
	env := newEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/users/register", map[string]string{"username": "bob", "password": "hunter22"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/users/login", map[string]string{"username": "bob", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body.Message)

	resp, body = env.do(t, http.MethodPost, "/api/users/login", map[string]string{"username": "nobody", "password": "hunter22"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body.Message)

	resp, body = env.do(t, http.MethodPost, "/api/users/login", map[string]string{"username": "bob", "password": "hunter22"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body.Message)
	require.NotNil(t, sessionCookie(resp))

	resp, body = env.do(t, http.MethodPost, "/api/users/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out successfully", body.Message)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, body = env.do(t, http.MethodGet, "/api/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authenticated", body.Message)
	assert.Equal(t, "NOT_AUTHENTICATED", body.Kind)
}

func TestRouter_RegisterRejectsDuplicates(t *testing.T) {
	env := newEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/users/register", map[string]string{"username": "carol", "password": "pa55word"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/users/register", map[string]string{"username": "carol", "password": "other123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", body.Message)
	assert.Nil(t, sessionCookie(resp))
}

func TestRouter_StaleCookieIsCleared(t *testing.T) {
	env := newEnv(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, env.server.URL+"/api/users/favorites", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: strings.Repeat("ab", 32)})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestRouter_RejectsBadBodies(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		message     string
	}{
		{"malformed json", "application/json", "{", http.StatusBadRequest, "Malformed JSON body"},
		{"wrong content type", "text/plain", `{"username":"x"}`, http.StatusUnsupportedMediaType, ""},
		{"oversized", "application/json", `{"username":"` + strings.Repeat("a", 2<<20) + `"}`, http.StatusBadRequest, "Request body too large"},
		{"missing username", "application/json", `{"password":"secret123"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				var out response
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
				assert.Equal(t, tt.message, out.Message)
				assert.Equal(t, "INVALID_INPUT", out.Kind)
			}
		})
	}
}

// requestIDRecorder keeps each record's message with the chi request ID
// found in the context it was logged with.
type requestIDRecorder struct {
	mu      sync.Mutex
	records map[string]string
}

func (h *requestIDRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *requestIDRecorder) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[r.Message] = chiMiddleware.GetReqID(ctx)
	return nil
}

func (h *requestIDRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *requestIDRecorder) WithGroup(string) slog.Handler      { return h }

func TestRouter_MalformedBodyLogsWithRequestContext(t *testing.T) {
	recorder := &requestIDRecorder{records: map[string]string{}}
	env := newEnv(t, func(o *api.Options) { o.Logger = slog.New(recorder) })

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(chiMiddleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	id, ok := recorder.records["malformed request body"]
	require.True(t, ok, "malformed body must be logged through the router logger")
	assert.Equal(t, "req-42", id)
}

func TestRouter_InvalidCountryCode(t *testing.T) {
	env := newEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/users/register", map[string]string{"username": "dave", "password": "letmein1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/users/favorites", map[string]string{"countryCode": "U5!"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Country code must be 2 or 3 letters", body.Message)
}

func TestRouter_CORSAllowsClientOrigin(t *testing.T) {
	env := newEnv(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, env.server.URL+"/api/users/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	env := newEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, body.Success)
}
