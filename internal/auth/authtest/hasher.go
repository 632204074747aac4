// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package authtest

import "github.com/terraatlas/terra/internal/auth"

// FastParams is a minimal argon2id work factor for tests.
var FastParams = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}

// NewHasher returns an argon2id hasher using FastParams.
func NewHasher() *auth.Argon2idHasher {
	h, err := auth.NewArgon2idHasherWithParams(FastParams)
	if err != nil {
		panic(err)
	}
	return h
}
