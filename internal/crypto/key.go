// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package crypto is the profile crypto core: key derivation, authenticated
// encryption, recovery phrases, and secure file deletion. Every profile's
// key material lives in mlocked memory for as long as the profile is
// unlocked and is gone the instant the session ends.
package crypto

import (
	"github.com/awnumar/memguard"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Key holds 32 bytes of profile key material in mlocked, guard-paged
// memory. The zero value is not usable; construct with DeriveKey or
// NewKey. Destroy wipes the underlying pages and must be called exactly
// once the key is no longer needed.
type Key struct {
	buf *memguard.LockedBuffer
}

// NewKey copies b into secure memory and wipes b in place. b must be
// KeySize bytes.
func NewKey(b []byte) *Key {
	return &Key{buf: memguard.NewBufferFromBytes(b)}
}

// Bytes returns the key material. The returned slice aliases secure
// memory; callers must not retain it past the Key's lifetime.
func (k *Key) Bytes() []byte {
	return k.buf.Bytes()
}

// Destroy wipes the key from memory. Safe to call more than once.
func (k *Key) Destroy() {
	k.buf.Destroy()
}

// Destroyed reports whether Destroy has already run.
func (k *Key) Destroyed() bool {
	return k.buf.IsDestroyed()
}
