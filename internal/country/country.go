// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package country resolves country codes to display metadata.
package country

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound means the upstream has no country for the code.
var ErrNotFound = errors.New("country not found")

// Country is the display metadata for a country code.
type Country struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	FlagURL string `json:"flag_url"`
}

// Lookup resolves a single country code.
type Lookup interface {
	Lookup(ctx context.Context, code string) (Country, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, code string) (Country, error)

// Lookup calls f.
func (f LookupFunc) Lookup(ctx context.Context, code string) (Country, error) {
	return f(ctx, code)
}

// NormalizeCode trims and upper-cases code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is two or three ASCII letters.
func ValidCode(code string) bool {
	if len(code) < 2 || len(code) > 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
