// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with structured context.
// For oops errors the code and context map are attached; every error also
// carries its resolved kind so log queries line up with API responses.
func LogError(logger *slog.Logger, msg string, err error) {
	attrs := []any{
		"error", err.Error(),
		"kind", string(KindOf(err)),
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	logger.Error(msg, attrs...)
}
