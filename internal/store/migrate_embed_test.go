// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool, len(entries))
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		names[entry.Name()] = true
		assert.True(t, pattern.MatchString(entry.Name()), "unexpected migration file %s", entry.Name())
	}

	for _, want := range []string{
		"000001_create_accounts.up.sql",
		"000001_create_accounts.down.sql",
		"000002_create_sessions.up.sql",
		"000002_create_sessions.down.sql",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestMigrationsFS_EveryUpHasDown(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for name := range names {
		if stem, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[stem+".down.sql"], "%s has no down migration", stem)
		}
	}
}

func TestMigrationsFS_SchemaConstraints(t *testing.T) {
	accounts, err := migrationsFS.ReadFile("migrations/000001_create_accounts.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(accounts), "CONSTRAINT accounts_username_key UNIQUE (username)")
	assert.Contains(t, string(accounts), "favorites     TEXT[] NOT NULL DEFAULT '{}'")

	sessions, err := migrationsFS.ReadFile("migrations/000002_create_sessions.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sessions), "REFERENCES accounts(id) ON DELETE CASCADE")
}
