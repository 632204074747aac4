// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package authtest provides in-memory auth repositories for tests.
package authtest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/pkg/errutil"
)

// AccountStore is a mutex-guarded auth.AccountRepository.
// The mutex gives the same per-account atomicity the SQL statements do.
type AccountStore struct {
	mu       sync.Mutex
	byID     map[ulid.ULID]*auth.Account
	byName   map[string]ulid.ULID
	failNext error
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:   make(map[ulid.ULID]*auth.Account),
		byName: make(map[string]ulid.ULID),
	}
}

// FailNext makes the next call return err.
func (s *AccountStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *AccountStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Create stores a new account.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, taken := s.byName[account.Username]; taken {
		return oops.Code("ACCOUNT_DUPLICATE").With("username", account.Username).Wrap(errutil.KindDuplicateUsername)
	}
	stored := clone(account)
	s.byID[account.ID] = stored
	s.byName[account.Username] = account.ID
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, notFound(id.String())
	}
	return clone(a), nil
}

// GetByUsername retrieves an account by username.
func (s *AccountStore) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	id, ok := s.byName[username]
	if !ok {
		return nil, notFound(username)
	}
	return clone(s.byID[id]), nil
}

// UpdatePasswordHash replaces the stored password hash.
func (s *AccountStore) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	a, ok := s.byID[id]
	if !ok {
		return notFound(id.String())
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now()
	return nil
}

// AddFavorite appends code unless present.
func (s *AccountStore) AddFavorite(_ context.Context, id ulid.ULID, code string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, notFound(id.String())
	}
	if a.HasFavorite(code) {
		return nil, oops.Code("FAVORITE_EXISTS").With("code", code).Wrap(errutil.KindAlreadyFavorited)
	}
	a.Favorites = append(a.Favorites, code)
	a.UpdatedAt = time.Now()
	return clone(a), nil
}

// RemoveFavorite removes code if present.
func (s *AccountStore) RemoveFavorite(_ context.Context, id ulid.ULID, code string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, notFound(id.String())
	}
	i := slices.Index(a.Favorites, code)
	if i < 0 {
		return nil, oops.Code("FAVORITE_MISSING").With("code", code).Wrap(errutil.KindNotFavorited)
	}
	a.Favorites = slices.Delete(a.Favorites, i, i+1)
	a.UpdatedAt = time.Now()
	return clone(a), nil
}

// Delete removes an account.
func (s *AccountStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	a, ok := s.byID[id]
	if !ok {
		return notFound(id.String())
	}
	delete(s.byName, a.Username)
	delete(s.byID, id)
	return nil
}

func notFound(key string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With("key", key).Wrap(errutil.KindAccountNotFound)
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	c.Favorites = slices.Clone(a.Favorites)
	if c.Favorites == nil {
		c.Favorites = []string{}
	}
	return &c
}

// SessionStore is a mutex-guarded auth.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	byHash   map[string]*auth.Session
	now      func() time.Time
	failNext error
}

// NewSessionStore creates an empty SessionStore using the wall clock.
func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock creates an empty SessionStore that expires
// sessions against now.
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{byHash: make(map[string]*auth.Session), now: now}
}

// FailNext makes the next call return err.
func (s *SessionStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

// Create stores a new session.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return err
	}
	if _, dup := s.byHash[session.TokenHash]; dup {
		return oops.Code("SESSION_DUPLICATE").Errorf("token hash already exists")
	}
	c := *session
	s.byHash[session.TokenHash] = &c
	return nil
}

// GetByTokenHash retrieves a session by token hash.
func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return nil, err
	}
	session, ok := s.byHash[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	c := *session
	return &c, nil
}

// DeleteByTokenHash removes a session if present.
func (s *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return err
	}
	delete(s.byHash, tokenHash)
	return nil
}

// DeleteByAccount removes every session owned by accountID.
func (s *SessionStore) DeleteByAccount(_ context.Context, accountID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return err
	}
	for hash, session := range s.byHash {
		if session.AccountID == accountID {
			delete(s.byHash, hash)
		}
	}
	return nil
}

// DeleteExpired removes expired sessions.
func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return 0, err
	}
	now := s.now()
	var n int64
	for hash, session := range s.byHash {
		if session.IsExpiredAt(now) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) take() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// Compile-time interface checks.
var (
	_ auth.AccountRepository = (*AccountStore)(nil)
	_ auth.SessionRepository = (*SessionStore)(nil)
)
