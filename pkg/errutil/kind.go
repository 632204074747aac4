// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package errutil

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for callers. The set is closed: every error the
// service returns resolves to exactly one Kind via KindOf.
//
// Kind implements error so it can sit at the bottom of an oops chain and be
// recovered with errors.As regardless of how many layers wrapped it.
type Kind string

// Error kinds.
const (
	KindDuplicateUsername   Kind = "DUPLICATE_USERNAME"
	KindInvalidCredentials  Kind = "INVALID_CREDENTIALS"
	KindNotAuthenticated    Kind = "NOT_AUTHENTICATED"
	KindAccountNotFound     Kind = "ACCOUNT_NOT_FOUND"
	KindAlreadyFavorited    Kind = "ALREADY_FAVORITED"
	KindNotFavorited        Kind = "NOT_FAVORITED"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInternal            Kind = "INTERNAL"
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	KindDuplicateUsername,
	KindInvalidCredentials,
	KindNotAuthenticated,
	KindAccountNotFound,
	KindAlreadyFavorited,
	KindNotFavorited,
	KindUpstreamUnavailable,
	KindInvalidInput,
	KindInternal,
}

// Error returns the user-facing message so a bare Kind is a usable error.
func (k Kind) Error() string {
	return k.Message()
}

// Message returns the human-readable text shown to API clients.
func (k Kind) Message() string {
	switch k {
	case KindDuplicateUsername:
		return "User already exists"
	case KindInvalidCredentials:
		return "Invalid credentials"
	case KindNotAuthenticated:
		return "Not authenticated"
	case KindAccountNotFound:
		return "User not found"
	case KindAlreadyFavorited:
		return "Country already in favorites"
	case KindNotFavorited:
		return "Country not in favorites"
	case KindUpstreamUnavailable:
		return "Country data unavailable"
	case KindInvalidInput:
		return "Invalid request"
	default:
		return "Server error"
	}
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindDuplicateUsername, KindAlreadyFavorited, KindNotFavorited, KindInvalidInput:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindAccountNotFound:
		return http.StatusNotFound
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind carried by err. Nil yields the empty Kind; errors
// without a Kind in their chain are infrastructure faults and yield
// KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
