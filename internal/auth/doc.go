// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

// Package auth provides account credentials, server-side sessions, and the
// gate that turns a session token into an authenticated identity.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - creates an Account with a validated username and password hash
//   - NewSession - creates a Session bound to an account with a fixed expiry
//
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
//   - Service - registration, login, logout, session resolution
//   - Gate - per-request authentication state machine built on Service
//
// Only the Gate resolves tokens on behalf of request handlers; handlers never
// read the session store directly.
package auth
