// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32                  // 32 bytes = 64 hex chars
	DefaultSessionTTL = 14 * 24 * time.Hour // fixed lifetime, no sliding renewal
)

// Session is a server-side login session. The plaintext token is only ever
// held by the client; the store keeps its SHA-256 digest.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession creates a validated Session instance.
func NewSession(accountID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() || !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("created_at", createdAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation")
	}

	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
// A session is dead from the instant of its expiry.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// WellFormedToken reports whether token has the shape GenerateSessionToken
// produces: 64 lowercase hex characters.
func WellFormedToken(token string) bool {
	if len(token) != SessionTokenBytes*2 {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash. Fails with ErrNotFound.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes a session. Deleting an unknown hash is not an error.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByAccount removes all sessions for an account.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes all expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
