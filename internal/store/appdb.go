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

	"github.com/jmoiron/sqlx"

	"github.com/coheara/engine/pkg/cherr"
)

// AccessLevel is the grant level on a device or a cross-profile share.
type AccessLevel string

const (
	AccessFull     AccessLevel = "full"
	AccessReadOnly AccessLevel = "read_only"
)

// DeviceRegistration is one row of device_registry (spec §4.4).
type DeviceRegistration struct {
	DeviceID       string    `db:"device_id"`
	DeviceName     string    `db:"device_name"`
	DeviceModel    string    `db:"device_model"`
	OwnerProfileID string    `db:"owner_profile_id"`
	PublicKey      []byte    `db:"public_key"`
	RegisteredAt   time.Time `db:"registered_at"`
	LastSeenAt     time.Time `db:"last_seen_at"`
}

// AppRepo is the unencrypted cross-profile registry: devices, their
// per-profile access grants, and profile-to-profile access grants.
// Unencrypted because it carries no PHI, only device identifiers and
// public keys (spec §4.4).
type AppRepo struct{ db *sqlx.DB }

func NewAppRepo(db *sqlx.DB) *AppRepo { return &AppRepo{db: db} }

// RegisterDevice inserts or updates a device's registration row.
func (r *AppRepo) RegisterDevice(d DeviceRegistration) error {
	_, err := r.db.Exec(
		`INSERT INTO device_registry (device_id, device_name, device_model, owner_profile_id, public_key, registered_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET device_name = excluded.device_name, last_seen_at = excluded.last_seen_at`,
		d.DeviceID, d.DeviceName, d.DeviceModel, d.OwnerProfileID, d.PublicKey, d.RegisteredAt, d.LastSeenAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "register device", err)
	}
	return nil
}

// TouchDevice updates last_seen_at for a device.
func (r *AppRepo) TouchDevice(deviceID string) error {
	_, err := r.db.Exec(`UPDATE device_registry SET last_seen_at = ? WHERE device_id = ?`, time.Now().UTC(), deviceID)
	if err != nil {
		return cherr.Wrap(cherr.Database, "touch device", err)
	}
	return nil
}

// GetDevice fetches a device registration by id.
func (r *AppRepo) GetDevice(deviceID string) (*DeviceRegistration, error) {
	var d DeviceRegistration
	err := r.db.Get(&d, `SELECT * FROM device_registry WHERE device_id = ?`, deviceID)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "device not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get device", err)
	}
	return &d, nil
}

// RevokeDevice deletes a device registration; device_profile_access rows
// cascade per the foreign key.
func (r *AppRepo) RevokeDevice(deviceID string) error {
	res, err := r.db.Exec(`DELETE FROM device_registry WHERE device_id = ?`, deviceID)
	if err != nil {
		return cherr.Wrap(cherr.Database, "revoke device", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return cherr.New(cherr.NotFound, "device not found")
	}
	return nil
}

// GrantDeviceAccess gives a device an access level on a profile.
func (r *AppRepo) GrantDeviceAccess(deviceID, profileID string, level AccessLevel) error {
	_, err := r.db.Exec(
		`INSERT INTO device_profile_access (device_id, profile_id, access_level) VALUES (?, ?, ?)
		 ON CONFLICT(device_id, profile_id) DO UPDATE SET access_level = excluded.access_level`,
		deviceID, profileID, level,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "grant device access", err)
	}
	return nil
}

// DeviceAccessLevel returns a device's access level on a profile, if any.
func (r *AppRepo) DeviceAccessLevel(deviceID, profileID string) (AccessLevel, bool, error) {
	var level string
	err := r.db.Get(&level, `SELECT access_level FROM device_profile_access WHERE device_id = ? AND profile_id = ?`, deviceID, profileID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, cherr.Wrap(cherr.Database, "get device access level", err)
	}
	return AccessLevel(level), true, nil
}

// GrantProfileAccess records a unidirectional profile-to-profile share.
func (r *AppRepo) GrantProfileAccess(granter, grantee string, level AccessLevel) error {
	_, err := r.db.Exec(
		`INSERT INTO profile_access_grants (granter, grantee, access_level) VALUES (?, ?, ?)
		 ON CONFLICT(granter, grantee) DO UPDATE SET access_level = excluded.access_level`,
		granter, grantee, level,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "grant profile access", err)
	}
	return nil
}

// AccessibleProfile is one profile a device can read, alongside the
// level it was granted, for GET /profiles/accessible.
type AccessibleProfile struct {
	ProfileID   string      `db:"profile_id"`
	AccessLevel AccessLevel `db:"access_level"`
}

// ListAccessibleProfiles returns every profile id a device holds any
// access grant on, most-recently-granted first is not tracked so this
// orders by profile id for stable output.
func (r *AppRepo) ListAccessibleProfiles(deviceID string) ([]AccessibleProfile, error) {
	var rows []AccessibleProfile
	err := r.db.Select(&rows,
		`SELECT profile_id, access_level FROM device_profile_access WHERE device_id = ? ORDER BY profile_id`, deviceID)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list accessible profiles", err)
	}
	return rows, nil
}

// ListDevicesForProfile returns every device with any access grant on profileID.
func (r *AppRepo) ListDevicesForProfile(profileID string) ([]DeviceRegistration, error) {
	var devices []DeviceRegistration
	err := r.db.Select(&devices,
		`SELECT d.* FROM device_registry d
		 JOIN device_profile_access a ON a.device_id = d.device_id
		 WHERE a.profile_id = ? ORDER BY d.registered_at`, profileID)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list devices for profile", err)
	}
	return devices, nil
}
