// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package core exposes the account and favorites operations to transports.
//
// Every operation that takes a session token passes it through the auth
// Gate before touching any store; the resolved identity is carried on the
// context from then on. Failures carry an errutil.Kind; anything without
// one is an infrastructure fault and is logged here before it is returned.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/favorites"
	"github.com/terraatlas/terra/pkg/errutil"
)

// Authenticator registers accounts and manages sessions.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*auth.Account, string, *auth.Session, error)
	Login(ctx context.Context, username, password string) (*auth.Account, string, *auth.Session, error)
	Logout(ctx context.Context, token string) error
}

// Gatekeeper turns a session token into an identity.
type Gatekeeper interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// AccountReader loads accounts by ID.
type AccountReader interface {
	GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error)
}

// FavoritesManager implements favorite operations for an account.
type FavoritesManager interface {
	List(ctx context.Context, accountID ulid.ULID) ([]favorites.Entry, error)
	Add(ctx context.Context, accountID ulid.ULID, code string) (favorites.Entry, error)
	Remove(ctx context.Context, accountID ulid.ULID, code string) error
}

// Grant is the result of a successful register or login.
type Grant struct {
	Account   *auth.Account
	Token     string
	ExpiresAt time.Time
}

// Service implements the transport-facing operations.
type Service struct {
	authn     Authenticator
	gate      Gatekeeper
	accounts  AccountReader
	favorites FavoritesManager
	logger    *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(authn Authenticator, gate Gatekeeper, accounts AccountReader, favs FavoritesManager, logger *slog.Logger) (*Service, error) {
	if authn == nil {
		return nil, oops.Code("CORE_INVALID_CONFIG").Errorf("authenticator is required")
	}
	if gate == nil {
		return nil, oops.Code("CORE_INVALID_CONFIG").Errorf("gate is required")
	}
	if accounts == nil {
		return nil, oops.Code("CORE_INVALID_CONFIG").Errorf("account reader is required")
	}
	if favs == nil {
		return nil, oops.Code("CORE_INVALID_CONFIG").Errorf("favorites manager is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		authn:     authn,
		gate:      gate,
		accounts:  accounts,
		favorites: favs,
		logger:    logger,
	}, nil
}

// Register creates an account and starts its first session.
func (s *Service) Register(ctx context.Context, username, password string) (Grant, error) {
	account, token, session, err := s.authn.Register(ctx, username, password)
	if err != nil {
		return Grant{}, s.fail(ctx, "register", err)
	}
	return Grant{Account: account, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Login starts a new session for valid credentials.
func (s *Service) Login(ctx context.Context, username, password string) (Grant, error) {
	account, token, session, err := s.authn.Login(ctx, username, password)
	if err != nil {
		return Grant{}, s.fail(ctx, "login", err)
	}
	return Grant{Account: account, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout destroys the session behind token. Unknown tokens succeed.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.authn.Logout(ctx, token); err != nil {
		return s.fail(ctx, "logout", err)
	}
	return nil
}

// CurrentUser returns the account that owns token.
func (s *Service) CurrentUser(ctx context.Context, token string) (*auth.Account, error) {
	ctx, id, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, "current user", err)
	}
	account, err := s.accounts.GetByID(ctx, id.AccountID)
	if err != nil {
		return nil, s.fail(ctx, "current user", err)
	}
	return account, nil
}

// AddFavorite bookmarks code for the caller.
func (s *Service) AddFavorite(ctx context.Context, token, code string) (favorites.Entry, error) {
	ctx, id, err := s.authenticate(ctx, token)
	if err != nil {
		return favorites.Entry{}, s.fail(ctx, "add favorite", err)
	}
	entry, err := s.favorites.Add(ctx, id.AccountID, code)
	if err != nil {
		return favorites.Entry{}, s.fail(ctx, "add favorite", err)
	}
	return entry, nil
}

// ListFavorites returns the caller's resolvable favorites in stored order.
func (s *Service) ListFavorites(ctx context.Context, token string) ([]favorites.Entry, error) {
	ctx, id, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, "list favorites", err)
	}
	entries, err := s.favorites.List(ctx, id.AccountID)
	if err != nil {
		return nil, s.fail(ctx, "list favorites", err)
	}
	return entries, nil
}

// RemoveFavorite drops code from the caller's favorites.
func (s *Service) RemoveFavorite(ctx context.Context, token, code string) error {
	ctx, id, err := s.authenticate(ctx, token)
	if err != nil {
		return s.fail(ctx, "remove favorite", err)
	}
	if err := s.favorites.Remove(ctx, id.AccountID, code); err != nil {
		return s.fail(ctx, "remove favorite", err)
	}
	return nil
}

func (s *Service) authenticate(ctx context.Context, token string) (context.Context, auth.Identity, error) {
	id, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return ctx, auth.Identity{}, err
	}
	return auth.WithIdentity(ctx, id), id, nil
}

// fail logs infrastructure faults and tags the operation on every error.
func (s *Service) fail(ctx context.Context, operation string, err error) error {
	kind := errutil.KindOf(err)
	if kind == errutil.KindInternal {
		logger := s.logger
		if id, ok := auth.IdentityFrom(ctx); ok {
			logger = logger.With("account_id", id.AccountID.String())
		}
		errutil.LogError(logger, operation+" failed", err)
	}
	return oops.With("operation", operation).Wrap(err)
}
