// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraatlas/terra/internal/api"
)

func TestServer_StartServeStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	srv := api.NewServer("127.0.0.1:0", handler)
	assert.Empty(t, srv.Addr())

	errCh, err := srv.Start()
	require.NoError(t, err)
	require.NotEmpty(t, srv.Addr())

	_, err = srv.Start()
	require.Error(t, err, "second start fails")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "pong", string(body))
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open, "error channel closes on graceful stop")
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	srv := api.NewServer("256.0.0.1:bad", http.NotFoundHandler())
	_, err := srv.Start()
	require.Error(t, err)
}

func TestCookieTransport_ExpiredSessionClears(t *testing.T) {
	ct := api.NewCookieTransport("sid", true)
	rec := httptest.NewRecorder()
	ct.SetToken(rec, "abc", time.Now().Add(-time.Minute))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
}

func TestCookieTransport_RoundTrip(t *testing.T) {
	ct := api.NewCookieTransport("sid", false)
	rec := httptest.NewRecorder()
	ct.SetToken(rec, "abc", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.InDelta(t, 3600, cookies[0].MaxAge, 2)

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Empty(t, ct.Token(req))
	req.AddCookie(cookies[0])
	assert.Equal(t, "abc", ct.Token(req))
}
