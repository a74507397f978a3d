// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"database/sql"
	"time"

	"github.com/coheara/engine/pkg/cherr"
)

// DeviceTokenRepo persists the current bearer-token hash per device in
// the encrypted per-profile database (spec §4.9: "persist both the
// device row and the initial token hash to the encrypted DB" — the
// device row itself lives in the unencrypted app registry, store.AppRepo;
// the token hash is session material and belongs with the profile it
// authenticates against).
type DeviceTokenRepo struct{ db *DB }

func NewDeviceTokenRepo(db *DB) *DeviceTokenRepo { return &DeviceTokenRepo{db: db} }

// Upsert persists a device's current token hash, replacing any prior one.
func (r *DeviceTokenRepo) Upsert(deviceID, tokenHash string) error {
	_, err := r.db.Exec(
		`INSERT INTO device_tokens (device_id, token_hash, rotated_at) VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET token_hash = excluded.token_hash, rotated_at = excluded.rotated_at`,
		deviceID, tokenHash, time.Now().UTC(),
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "upsert device token", err)
	}
	return nil
}

// TokenHash returns the current token hash for a device.
func (r *DeviceTokenRepo) TokenHash(deviceID string) (string, error) {
	var hash string
	err := r.db.Get(&hash, `SELECT token_hash FROM device_tokens WHERE device_id = ?`, deviceID)
	if err == sql.ErrNoRows {
		return "", cherr.New(cherr.NotFound, "device token not found")
	}
	if err != nil {
		return "", cherr.Wrap(cherr.Database, "get device token", err)
	}
	return hash, nil
}

// Revoke removes a device's token, making every subsequent request with
// its old bearer token fail auth immediately.
func (r *DeviceTokenRepo) Revoke(deviceID string) error {
	if _, err := r.db.Exec(`DELETE FROM device_tokens WHERE device_id = ?`, deviceID); err != nil {
		return cherr.Wrap(cherr.Database, "revoke device token", err)
	}
	return nil
}

// All returns every device's current token hash, keyed by device id. Used
// to rebuild the in-memory token-hash lookup the pairing registry keeps
// for O(1) auth, since a bearer token carries no device id of its own.
func (r *DeviceTokenRepo) All() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT device_id, token_hash FROM device_tokens`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list device tokens", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var deviceID, hash string
		if err := rows.Scan(&deviceID, &hash); err != nil {
			return nil, cherr.Wrap(cherr.Database, "scan device token", err)
		}
		out[deviceID] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, cherr.Wrap(cherr.Database, "iterate device tokens", err)
	}
	return out, nil
}
