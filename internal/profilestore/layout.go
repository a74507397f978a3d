// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profilestore

import "path/filepath"

func (m *Manager) profileDir(profileID string) string {
	return filepath.Join(m.root, profileID)
}

func (m *Manager) saltPath(profileID string) string {
	return filepath.Join(m.profileDir(profileID), saltFileName)
}

func (m *Manager) recoverySaltPath(profileID string) string {
	return filepath.Join(m.profileDir(profileID), recoverySaltFileName)
}

func (m *Manager) verificationPath(profileID string) string {
	return filepath.Join(m.profileDir(profileID), verificationFileName)
}

func (m *Manager) databasePath(profileID string) string {
	return filepath.Join(m.profileDir(profileID), databaseDirName, profileDBFileName)
}

func (m *Manager) markdownDir(profileID string) string {
	return filepath.Join(m.profileDir(profileID), markdownDirName)
}

func (m *Manager) markdownPath(profileID, docID string) string {
	return filepath.Join(m.markdownDir(profileID), docID+".md.enc")
}

func (m *Manager) mobileStagingDir(profileID string) string {
	return filepath.Join(m.profileDir(profileID), mobileStagingDirName)
}

func (m *Manager) wifiStagingDir(profileID string) string {
	return filepath.Join(m.profileDir(profileID), wifiStagingDirName)
}

func (m *Manager) appDBPath() string {
	return filepath.Join(m.root, appDBFileName)
}
