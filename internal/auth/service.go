// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/pkg/errutil"
)

// Observer receives authentication events for metrics.
type Observer interface {
	SessionCreated()
	LoginFailed()
}

type nopObserver struct{}

func (nopObserver) SessionCreated() {}
func (nopObserver) LoginFailed()    {}

// Service provides registration, login, and session lifecycle operations.
type Service struct {
	accounts AccountRepository
	sessions SessionRepository
	hasher   PasswordHasher
	ttl      time.Duration
	now      func() time.Time
	observer Observer
	logger   *slog.Logger

	// dummyHash is verified when the username is unknown so that a missing
	// account costs the same as a wrong password. It never matches.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionTTL sets the fixed session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("password hasher is required")
	}

	s := &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl <= 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").With("ttl", s.ttl).Errorf("session TTL must be positive")
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}

	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("operation", "hash dummy password").
			Wrap(err)
	}
	s.dummyHash = dummyHash
	return s, nil
}

// SessionTTL returns the fixed session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Register creates an account and logs it in.
// Returns the account, the plaintext session token, and the session.
func (s *Service) Register(ctx context.Context, username, password string) (*Account, string, *Session, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, "", nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, "", nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(username, hash)
	if err != nil {
		return nil, "", nil, err
	}

	// The unique index decides the race between concurrent registrations.
	if err := s.accounts.Create(ctx, account); err != nil {
		if errutil.IsKind(err, errutil.KindDuplicateUsername) {
			return nil, "", nil, oops.With("username", username).Wrap(err)
		}
		return nil, "", nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	token, session, err := s.StartSession(ctx, account.ID)
	if err != nil {
		// Roll back so a failed registration leaves no account behind.
		if delErr := s.accounts.Delete(ctx, account.ID); delErr != nil {
			errutil.LogError(s.logger, "failed to roll back account after session error", delErr)
		}
		return nil, "", nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "start session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"session_id", session.ID.String(),
	)
	return account, token, session, nil
}

// Login verifies credentials and starts a new session. Unknown usernames
// and wrong passwords fail identically with KindInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Account, string, *Session, error) {
	account, lookupErr := s.accounts.GetByUsername(ctx, username)

	var targetHash string
	accountExists := false
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
		accountExists = true
	case errutil.IsKind(lookupErr, errutil.KindAccountNotFound):
		targetHash = s.dummyHash
	default:
		return nil, "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && accountExists {
		return nil, "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(verifyErr)
	}

	if !accountExists || !valid {
		s.observer.LoginFailed()
		s.logger.DebugContext(ctx, "login rejected", "account_exists", accountExists)
		return nil, "", nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrap(errutil.KindInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	token, session, err := s.StartSession(ctx, account.ID)
	if err != nil {
		return nil, "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "start session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account logged in",
		"account_id", account.ID.String(),
		"session_id", session.ID.String(),
	)
	return account, token, session, nil
}

// upgradeHash re-hashes a legacy or weak hash. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "account_id", account.ID.String(), "error", err)
		return
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade not persisted", "account_id", account.ID.String(), "error", err)
		return
	}
	account.PasswordHash = newHash
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
}

// StartSession creates a session for an account and returns its plaintext token.
func (s *Service) StartSession(ctx context.Context, accountID ulid.ULID) (string, *Session, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	session, err := NewSession(accountID, tokenHash, now, now.Add(s.ttl))
	if err != nil {
		return "", nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return "", nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.observer.SessionCreated()
	return token, session, nil
}

// ResolveSession maps a token to its live session. Absent, malformed, and
// expired tokens fail with ErrNotFound; expired sessions are deleted on sight.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Session, error) {
	if !WellFormedToken(token) {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrNotFound)
	}

	tokenHash := HashSessionToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrap(err)
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpiredAt(s.now()) {
		if delErr := s.sessions.DeleteByTokenHash(ctx, tokenHash); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete expired session", "session_id", session.ID.String(), "error", delErr)
		}
		return nil, oops.Code("SESSION_EXPIRED").
			With("session_id", session.ID.String()).
			Wrap(ErrNotFound)
	}

	return session, nil
}

// Logout destroys the session behind token. Unknown or malformed tokens
// are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if !WellFormedToken(token) {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteAccount removes an account and all of its sessions.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return oops.With("operation", "get account by username").With("username", username).Wrap(err)
	}
	if err := s.sessions.DeleteByAccount(ctx, account.ID); err != nil {
		return oops.Code("AUTH_DELETE_FAILED").
			With("operation", "delete sessions").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		return oops.With("operation", "delete account").With("account_id", account.ID.String()).Wrap(err)
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", account.ID.String())
	return nil
}
