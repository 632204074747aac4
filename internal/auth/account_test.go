// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "simple", username: "alice"},
		{name: "mixed case kept", username: "Alice"},
		{name: "inner space allowed", username: "alice smith"},
		{name: "unicode", username: "amélie"},
		{name: "max length", username: strings.Repeat("a", auth.MaxUsernameLength)},
		{name: "empty", username: "", wantErr: true},
		{name: "leading space", username: " alice", wantErr: true},
		{name: "trailing newline", username: "alice\n", wantErr: true},
		{name: "control char", username: "al\x00ice", wantErr: true},
		{name: "too long", username: strings.Repeat("a", auth.MaxUsernameLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if tt.wantErr {
				errutil.AssertKind(t, err, errutil.KindInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	require.NoError(t, auth.ValidatePassword("secret123"))
	errutil.AssertKind(t, auth.ValidatePassword(""), errutil.KindInvalidInput)
	errutil.AssertKind(t, auth.ValidatePassword(strings.Repeat("x", auth.MaxPasswordLength+1)), errutil.KindInvalidInput)
}

func TestNewAccount(t *testing.T) {
	t.Run("creates account with empty favorites", func(t *testing.T) {
		a, err := auth.NewAccount("alice", "$argon2id$hash")
		require.NoError(t, err)
		assert.Equal(t, "alice", a.Username)
		assert.NotEqual(t, ulid.ULID{}, a.ID)
		assert.NotNil(t, a.Favorites)
		assert.Empty(t, a.Favorites)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("rejects invalid username", func(t *testing.T) {
		_, err := auth.NewAccount("", "$argon2id$hash")
		errutil.AssertKind(t, err, errutil.KindInvalidInput)
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewAccount("alice", "")
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_HASH")
	})
}

func TestAccount_HasFavorite(t *testing.T) {
	a := &auth.Account{Favorites: []string{"US", "FR"}}
	assert.True(t, a.HasFavorite("US"))
	assert.False(t, a.HasFavorite("us"))
	assert.False(t, a.HasFavorite("DE"))
}
