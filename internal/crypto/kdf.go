// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the PBKDF2-HMAC-SHA256 iteration count. Chosen to take
// meaningfully more than 100ms on current commodity hardware. The actual
// derivation time is not measured at runtime: nothing checks or warns
// when it falls under that floor.
const Iterations = 600_000

// SaltSize is the byte length of salt.bin and recovery_salt.bin.
const SaltSize = 32

// DeriveKey derives a 256-bit key from secret (a password or a validated
// recovery phrase, as UTF-8 bytes) and salt using PBKDF2-HMAC-SHA256. Pure:
// the same (secret, salt) pair always yields identical bytes, and distinct
// salts with the same secret always yield distinct keys.
func DeriveKey(secret []byte, salt []byte) *Key {
	derived := pbkdf2.Key(secret, salt, Iterations, KeySize, sha256.New)
	return NewKey(derived)
}

// NewSalt samples a fresh SaltSize-byte salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
