// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package favorites manages an account's favorite countries and resolves
// their display metadata.
package favorites

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/country"
	"github.com/terraatlas/terra/pkg/errutil"
)

// Manager defaults.
const (
	DefaultLookupTimeout     = 5 * time.Second
	DefaultLookupConcurrency = 8
)

// Lookup outcomes reported to a LookupObserver.
const (
	OutcomeResolved    = "resolved"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
)

// Entry is a favorite with its resolved display metadata. CountryName and
// FlagURL are empty when the lookup did not resolve.
type Entry struct {
	CountryCode string
	CountryName string
	FlagURL     string
	AccountID   ulid.ULID
}

// Resolved reports whether the entry carries display metadata.
func (e Entry) Resolved() bool {
	return e.CountryName != ""
}

// LookupObserver is told the outcome of every country lookup.
type LookupObserver interface {
	CountryLookup(outcome string)
}

// Store is the slice of auth.AccountRepository the Manager needs.
type Store interface {
	GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error)
	AddFavorite(ctx context.Context, id ulid.ULID, code string) (*auth.Account, error)
	RemoveFavorite(ctx context.Context, id ulid.ULID, code string) (*auth.Account, error)
}

// Manager implements the favorites operations.
type Manager struct {
	store       Store
	lookup      country.Lookup
	timeout     time.Duration
	concurrency int
	observer    LookupObserver
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLookupTimeout bounds each individual lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLookupConcurrency caps in-flight lookups during List.
func WithLookupConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithLookupObserver registers an observer for lookup outcomes.
func WithLookupObserver(o LookupObserver) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager.
func NewManager(store Store, lookup country.Lookup, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, oops.Code("FAVORITES_INVALID").Errorf("store is required")
	}
	if lookup == nil {
		return nil, oops.Code("FAVORITES_INVALID").Errorf("country lookup is required")
	}
	m := &Manager{
		store:       store,
		lookup:      lookup,
		timeout:     DefaultLookupTimeout,
		concurrency: DefaultLookupConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// List returns the account's favorites in stored order. Codes whose lookup
// fails, times out, or finds nothing are omitted.
func (m *Manager) List(ctx context.Context, accountID ulid.ULID) ([]Entry, error) {
	account, err := m.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, oops.With("operation", "list favorites").Wrap(err)
	}

	slots := make([]*Entry, len(account.Favorites))
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, code := range account.Favorites {
		g.Go(func() error {
			if entry, ok := m.resolve(ctx, accountID, code); ok {
				slots[i] = &entry
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // lookups never return errors

	entries := make([]Entry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

// Add stores code and returns its entry. Display metadata is best-effort.
func (m *Manager) Add(ctx context.Context, accountID ulid.ULID, code string) (Entry, error) {
	code, err := normalize(code)
	if err != nil {
		return Entry{}, err
	}
	if _, err := m.store.AddFavorite(ctx, accountID, code); err != nil {
		return Entry{}, oops.With("operation", "add favorite").With("code", code).Wrap(err)
	}

	entry, ok := m.resolve(ctx, accountID, code)
	if !ok {
		entry = Entry{CountryCode: code, AccountID: accountID}
	}
	return entry, nil
}

// Remove deletes code from the account's favorites.
func (m *Manager) Remove(ctx context.Context, accountID ulid.ULID, code string) error {
	code, err := normalize(code)
	if err != nil {
		return err
	}
	if _, err := m.store.RemoveFavorite(ctx, accountID, code); err != nil {
		return oops.With("operation", "remove favorite").With("code", code).Wrap(err)
	}
	return nil
}

func (m *Manager) resolve(ctx context.Context, accountID ulid.ULID, code string) (Entry, bool) {
	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	c, err := m.lookup.Lookup(lctx, code)
	outcome := classify(lctx, err)
	if m.observer != nil {
		m.observer.CountryLookup(outcome)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "country lookup failed",
			"code", code,
			"outcome", outcome,
			"error", err)
		return Entry{}, false
	}
	return Entry{
		CountryCode: code,
		CountryName: c.Name,
		FlagURL:     c.FlagURL,
		AccountID:   accountID,
	}, true
}

func classify(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeResolved
	case errors.Is(err, country.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeUnavailable
	}
}

func normalize(code string) (string, error) {
	code = country.NormalizeCode(code)
	if !country.ValidCode(code) {
		return "", oops.Code("FAVORITE_CODE_INVALID").
			With("code", code).
			Public("Country code must be 2 or 3 letters").
			Wrap(errutil.KindInvalidInput)
	}
	return code, nil
}
