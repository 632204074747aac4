// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package auth

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/pkg/errutil"
)

// Credential limits.
const (
	MaxUsernameLength = 64
	MaxPasswordLength = 1024
)

// Account is a registered user and the countries they have bookmarked.
type Account struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string `json:"-"`
	// Favorites holds country codes in insertion order. It never contains duplicates.
	Favorites []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates a validated Account with a fresh ID.
func NewAccount(username, passwordHash string) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		Favorites:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasFavorite reports whether code is in the account's favorites.
func (a *Account) HasFavorite(code string) bool {
	return slices.Contains(a.Favorites, code)
}

// ValidateUsername checks a username for registration.
// Usernames are case-sensitive and must not carry surrounding whitespace.
func ValidateUsername(username string) error {
	if username == "" {
		return invalidInput("AUTH_INVALID_USERNAME", "username is required")
	}
	if strings.TrimSpace(username) != username {
		return invalidInput("AUTH_INVALID_USERNAME", "username cannot start or end with whitespace")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return invalidInput("AUTH_INVALID_USERNAME", "username is too long")
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return invalidInput("AUTH_INVALID_USERNAME", "username contains invalid characters")
		}
	}
	return nil
}

// ValidatePassword checks a plaintext password for registration.
func ValidatePassword(password string) error {
	if password == "" {
		return invalidInput("AUTH_INVALID_PASSWORD", "password is required")
	}
	if len(password) > MaxPasswordLength {
		return invalidInput("AUTH_INVALID_PASSWORD", "password is too long")
	}
	return nil
}

func invalidInput(code, public string) error {
	return oops.Code(code).Public(public).Wrapf(errutil.KindInvalidInput, "%s", public)
}

// AccountRepository manages account persistence.
//
// Favorite mutations must be atomic per account at the storage layer: the
// membership check and the write happen in one statement, never as a
// read-then-write in application code.
type AccountRepository interface {
	// Create stores a new account. Fails with KindDuplicateUsername when the
	// username is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID. Fails with KindAccountNotFound.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by exact username. Fails with KindAccountNotFound.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// AddFavorite appends code to the account's favorites. Fails with
	// KindAlreadyFavorited if present, KindAccountNotFound if the account is gone.
	AddFavorite(ctx context.Context, id ulid.ULID, code string) (*Account, error)

	// RemoveFavorite removes code from the account's favorites. Fails with
	// KindNotFavorited if absent, KindAccountNotFound if the account is gone.
	RemoveFavorite(ctx context.Context, id ulid.ULID, code string) (*Account, error)

	// Delete removes an account and, through the storage layer, its sessions.
	Delete(ctx context.Context, id ulid.ULID) error
}
