// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/terraatlas/terra/pkg/errutil"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errutil.Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "bare kind", err: errutil.KindDuplicateUsername, want: errutil.KindDuplicateUsername},
		{
			name: "oops wrapped",
			err:  oops.Code("ACCOUNT_CREATE_FAILED").With("username", "alice").Wrap(errutil.KindDuplicateUsername),
			want: errutil.KindDuplicateUsername,
		},
		{
			name: "double wrapped",
			err:  fmt.Errorf("outer: %w", oops.With("operation", "x").Wrap(errutil.KindNotAuthenticated)),
			want: errutil.KindNotAuthenticated,
		},
		{name: "plain error", err: errors.New("connection refused"), want: errutil.KindInternal},
		{name: "oops without kind", err: oops.Code("DB_DOWN").Errorf("boom"), want: errutil.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.KindOf(tt.err))
		})
	}
}

func TestKind_StatusAndMessage(t *testing.T) {
	for _, k := range errutil.Kinds {
		t.Run(string(k), func(t *testing.T) {
			assert.NotEmpty(t, k.Message())
			assert.Equal(t, k.Message(), k.Error())
			assert.GreaterOrEqual(t, k.Status(), 400)
		})
	}

	assert.Equal(t, http.StatusInternalServerError, errutil.KindInternal.Status())
	assert.Equal(t, "Server error", errutil.KindInternal.Message())
	assert.Equal(t, http.StatusUnauthorized, errutil.KindNotAuthenticated.Status())
}

func TestIsKind(t *testing.T) {
	err := oops.Wrap(errutil.KindAccountNotFound)
	assert.True(t, errutil.IsKind(err, errutil.KindAccountNotFound))
	assert.False(t, errutil.IsKind(err, errutil.KindInternal))
	assert.False(t, errutil.IsKind(nil, errutil.KindInternal))
}
