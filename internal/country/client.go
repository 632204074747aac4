// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package country

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/terraatlas/terra/pkg/errutil"
)

// Client defaults.
const (
	DefaultBaseURL     = "https://restcountries.com/v3.1"
	DefaultMaxRetries  = 2
	DefaultBackoffBase = 100 * time.Millisecond

	maxResponseBytes = 1 << 20
)

// Client looks countries up against the restcountries v3.1 API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  uint64
	backoffBase time.Duration
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithRetries sets the retry count and the base of the exponential backoff.
func WithRetries(maxRetries uint64, base time.Duration) ClientOption {
	return func(cl *Client) {
		cl.maxRetries = maxRetries
		if base > 0 {
			cl.backoffBase = base
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a Client rooted at baseURL. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, oops.Code("LOOKUP_CONFIG_INVALID").With("base_url", baseURL).Wrap(err)
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	Flags struct {
		SVG string `json:"svg"`
		PNG string `json:"png"`
	} `json:"flags"`
}

// Lookup fetches code. The caller's context bounds every attempt and the
// backoff between them.
func (c *Client) Lookup(ctx context.Context, code string) (Country, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return Country{}, oops.Code("LOOKUP_NOT_FOUND").With("code", code).Wrap(ErrNotFound)
	}

	var out Country
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		out, err = c.fetch(ctx, code)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Country{}, err
		}
		if ctx.Err() != nil {
			return Country{}, oops.Code("LOOKUP_TIMEOUT").With("code", code).Wrap(errutil.KindUpstreamUnavailable)
		}
		return Country{}, err
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, code string) (Country, error) {
	endpoint := c.baseURL + "/alpha/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Country{}, unavailable(code, "LOOKUP_REQUEST_INVALID", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Country{}, unavailable(code, "LOOKUP_TIMEOUT", err)
		}
		return Country{}, retry.RetryableError(unavailable(code, "LOOKUP_TRANSPORT_FAILED", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Country{}, oops.Code("LOOKUP_NOT_FOUND").With("code", code).Wrap(ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.logger.DebugContext(ctx, "country lookup retrying", "code", code, "status", resp.StatusCode)
		return Country{}, retry.RetryableError(oops.Code("LOOKUP_UPSTREAM_STATUS").
			With("code", code).
			With("status", resp.StatusCode).
			Wrap(errutil.KindUpstreamUnavailable))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Country{}, oops.Code("LOOKUP_UPSTREAM_STATUS").
			With("code", code).
			With("status", resp.StatusCode).
			Wrap(errutil.KindUpstreamUnavailable)
	}

	var body []restCountry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return Country{}, unavailable(code, "LOOKUP_MALFORMED", err)
	}
	if len(body) == 0 {
		return Country{}, oops.Code("LOOKUP_NOT_FOUND").With("code", code).Wrap(ErrNotFound)
	}
	first := body[0]
	if first.Name.Common == "" {
		return Country{}, oops.Code("LOOKUP_MALFORMED").
			With("code", code).
			Wrapf(errutil.KindUpstreamUnavailable, "response has no common name")
	}
	flag := first.Flags.SVG
	if flag == "" {
		flag = first.Flags.PNG
	}
	return Country{Code: code, Name: first.Name.Common, FlagURL: flag}, nil
}

func unavailable(code, oopsCode string, cause error) error {
	return oops.Code(oopsCode).
		With("code", code).
		With("cause", cause.Error()).
		Wrap(errutil.KindUpstreamUnavailable)
}
