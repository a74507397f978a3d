// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/coheara/engine/pkg/cherr"
)

// NonceSize is the GCM nonce length used for every Blob.
const NonceSize = 12

// Encrypt seals plaintext under key with AES-256-GCM and a freshly
// sampled nonce. The returned blob is laid out nonce ∥ ciphertext ∥ tag.
func Encrypt(key *Key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "construct cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "construct AEAD", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, cherr.Wrap(cherr.Crypto, "sample nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure mode — wrong
// key, truncated blob, tampered ciphertext, tampered tag — collapses to
// the single indistinguishable DecryptionFailed error so a caller can
// never use error shape to distinguish "wrong key" from "corrupted data".
func Decrypt(key *Key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, cherr.New(cherr.DecryptionFailed, "decryption failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cherr.New(cherr.DecryptionFailed, "decryption failed")
	}
	if len(blob) < NonceSize {
		return nil, cherr.New(cherr.DecryptionFailed, "decryption failed")
	}
	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, cherr.New(cherr.DecryptionFailed, "decryption failed")
	}
	return plaintext, nil
}
