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
)

// SweepStaging removes every file under staging/mobile and wifi_staging
// for every registered profile. Intended to run once at startup to clear
// orphaned partial uploads from a prior crash. Best-effort: a failure on
// one profile or one file is logged and does not stop the sweep.
func (m *Manager) SweepStaging() {
	for _, meta := range m.reg.list() {
		m.sweepDir(meta.ID, m.mobileStagingDir(meta.ID))
		m.sweepDir(meta.ID, m.wifiStagingDir(meta.ID))
	}
}

func (m *Manager) sweepDir(profileID, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("staging sweep: could not list directory", "profile_id", profileID, "dir", dir, "error", err)
		}
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.log.Warn("staging sweep: could not remove orphan", "profile_id", profileID, "path", path, "error", err)
		}
	}
}
