// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profilestore

import (
	"os"
	"path/filepath"

	ccrypto "github.com/coheara/engine/internal/crypto"
	"github.com/coheara/engine/pkg/cherr"
)

// SaveEncryptedMarkdown encrypts text under key and writes it to
// markdown/<docID>.md.enc, returning the path relative to the profile
// directory. The returned path never escapes the profile directory.
func (m *Manager) SaveEncryptedMarkdown(profileID, docID string, key *ccrypto.Key, text string) (string, error) {
	blob, err := ccrypto.Encrypt(key, []byte(text))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.markdownDir(profileID), 0o700); err != nil {
		return "", cherr.Wrap(cherr.Internal, "create markdown directory", err)
	}
	path := m.markdownPath(profileID, docID)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return "", cherr.Wrap(cherr.Internal, "write encrypted markdown", err)
	}
	rel, err := filepath.Rel(m.profileDir(profileID), path)
	if err != nil {
		return "", cherr.Wrap(cherr.Internal, "compute relative markdown path", err)
	}
	return rel, nil
}

// LoadEncryptedMarkdown reads and decrypts markdown/<docID>.md.enc.
func (m *Manager) LoadEncryptedMarkdown(profileID, docID string, key *ccrypto.Key) (string, error) {
	blob, err := os.ReadFile(m.markdownPath(profileID, docID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", cherr.New(cherr.NotFound, "document markdown not found")
		}
		return "", cherr.Wrap(cherr.Internal, "read encrypted markdown", err)
	}
	plaintext, err := ccrypto.Decrypt(key, blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
