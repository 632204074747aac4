// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraatlas/terra/pkg/errutil"
)

func runAccount(t *testing.T, mock pgxmock.PgxPoolIface, args ...string) (string, error) {
	t.Helper()
	isolate(t)
	prev := poolFactory
	poolFactory = func(context.Context, string) (Pool, error) { return mock, nil }
	t.Cleanup(func() { poolFactory = prev })

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append(append([]string{"account"}, args...), "--database-url=postgres://localhost/terra"))
	err := cmd.Execute()
	return out.String(), err
}

func TestAccountDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	id := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM accounts WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "favorites", "created_at", "updated_at"}).
			AddRow(id.String(), "alice", "$argon2id$hash", []string{"US"}, now, now))
	mock.ExpectExec(`DELETE FROM sessions WHERE account_id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectClose()

	out, err := runAccount(t, mock, "delete", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, `Deleted account "alice"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountDelete_UnknownUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectQuery(`FROM accounts WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "favorites", "created_at", "updated_at"}))
	mock.ExpectClose()

	_, err = runAccount(t, mock, "delete", "ghost")
	errutil.AssertKind(t, err, errutil.KindAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountDelete_RequiresUsername(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	_, err = runAccount(t, mock, "delete")
	require.Error(t, err)
}
