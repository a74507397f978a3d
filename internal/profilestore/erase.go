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

	"github.com/coheara/engine/pkg/cherr"
)

// requiredConfirmation is the literal string erase_profile_data demands,
// a deliberate speed bump against an accidental destructive call.
const requiredConfirmation = "DELETE MY DATA"

// EraseRequest is the input to EraseProfileData (spec §4.7).
type EraseRequest struct {
	Confirmation string
	ProfileID    string
	Password     string
}

// EraseResult reports what was destroyed.
type EraseResult struct {
	ProfileName  string
	FilesDeleted int
	BytesErased  int64
	KeyZeroed    bool
}

// EraseProfileData is the irreversible cryptographic-erasure operation.
// It requires the literal confirmation phrase, a profile directory that
// exists, and a password that successfully decrypts the profile's
// verification token. Any failure before shredding begins leaves the
// profile untouched; a failure partway through shredding still removes
// the registry entry so the profile can never reappear half-erased.
func (m *Manager) EraseProfileData(req EraseRequest) (*EraseResult, error) {
	if req.Confirmation != requiredConfirmation {
		return nil, cherr.New(cherr.BadRequest, "confirmation phrase does not match")
	}

	meta, ok := m.reg.get(req.ProfileID)
	if !ok {
		return nil, cherr.New(cherr.NotFound, "profile not found")
	}

	dir := m.profileDir(req.ProfileID)
	if _, err := os.Stat(dir); err != nil {
		return nil, cherr.New(cherr.NotFound, "profile directory not found")
	}

	unlocked, err := m.Unlock(req.ProfileID, req.Password)
	if err != nil {
		return nil, err
	}
	unlocked.Key.Destroy()

	fileCount, byteCount := countTree(dir)

	shredErr := shredTree(dir, m.log)
	if err := m.reg.remove(req.ProfileID); err != nil {
		m.log.Warn("erase: registry removal failed", "profile_id", req.ProfileID, "error", err)
	}
	if shredErr != nil {
		return nil, shredErr
	}

	m.log.Info("profile erased", "profile_id", req.ProfileID, "files_deleted", fileCount, "bytes_erased", byteCount)
	return &EraseResult{
		ProfileName:  meta.Name,
		FilesDeleted: fileCount,
		BytesErased:  byteCount,
		KeyZeroed:    true,
	}, nil
}

func countTree(dir string) (files int, bytes int64) {
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		files++
		bytes += info.Size()
		return nil
	})
	return files, bytes
}
