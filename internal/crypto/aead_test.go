// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"testing"

	"github.com/coheara/engine/pkg/cherr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	salt, err := NewSalt()
	require.NoError(t, err)
	return DeriveKey([]byte("profile-password"), salt)
}

func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	key := testKey(t)
	defer key.Destroy()

	plaintext := []byte("COHEARA_VERIFY")
	blob, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Greater(t, len(blob), NonceSize)

	recovered, err := Decrypt(key, blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestEncrypt_NoncesAreFresh(t *testing.T) {
	key := testKey(t)
	defer key.Destroy()

	a, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)
	b, err := Encrypt(key, []byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongKeyFailsWithDecryptionFailed(t *testing.T) {
	key := testKey(t)
	defer key.Destroy()
	wrongKey := testKey(t)
	defer wrongKey.Destroy()

	blob, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(wrongKey, blob)
	require.Error(t, err)
	assert.Equal(t, cherr.DecryptionFailed, cherr.KindOf(err))
}

func TestDecrypt_TamperedCiphertextFailsWithDecryptionFailed(t *testing.T) {
	key := testKey(t)
	defer key.Destroy()

	blob, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = Decrypt(key, blob)
	require.Error(t, err)
	assert.Equal(t, cherr.DecryptionFailed, cherr.KindOf(err))
}

func TestDecrypt_TruncatedBlobFailsWithDecryptionFailed(t *testing.T) {
	key := testKey(t)
	defer key.Destroy()

	_, err := Decrypt(key, []byte("short"))
	require.Error(t, err)
	assert.Equal(t, cherr.DecryptionFailed, cherr.KindOf(err))
}
