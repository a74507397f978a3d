// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sync implements the mobile delta-sync engine (spec §4.11): six
// monotonic per-entity-group version counters and the POST /api/sync
// handshake that assembles a present-tense view of every stale group.
package sync

import (
	"github.com/jmoiron/sqlx"

	"github.com/coheara/engine/pkg/cherr"
)

// Group names an entity group with its own sync_cursors counter.
type Group string

const (
	GroupMedications  Group = "medications"
	GroupLabs         Group = "labs"
	GroupTimeline     Group = "timeline"
	GroupAlerts       Group = "alerts"
	GroupAppointments Group = "appointments"
	GroupProfile      Group = "profile"
)

// Groups lists every counter in a fixed, deterministic order.
var Groups = []Group{GroupMedications, GroupLabs, GroupTimeline, GroupAlerts, GroupAppointments, GroupProfile}

// VersionRepo wraps the sync_cursors table.
type VersionRepo struct{ db *sqlx.DB }

func NewVersionRepo(db *sqlx.DB) *VersionRepo { return &VersionRepo{db: db} }

// Get returns a single group's current counter value.
func (r *VersionRepo) Get(g Group) (int64, error) {
	var v int64
	if err := r.db.Get(&v, `SELECT version FROM sync_cursors WHERE entity = ?`, string(g)); err != nil {
		return 0, cherr.Wrap(cherr.Database, "get sync cursor", err)
	}
	return v, nil
}

// GetAll returns every counter keyed by group.
func (r *VersionRepo) GetAll() (map[Group]int64, error) {
	rows, err := r.db.Query(`SELECT entity, version FROM sync_cursors`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list sync cursors", err)
	}
	defer rows.Close()

	out := make(map[Group]int64, len(Groups))
	for rows.Next() {
		var entity string
		var version int64
		if err := rows.Scan(&entity, &version); err != nil {
			return nil, cherr.Wrap(cherr.Database, "scan sync cursor", err)
		}
		out[Group(entity)] = version
	}
	if err := rows.Err(); err != nil {
		return nil, cherr.Wrap(cherr.Database, "iterate sync cursors", err)
	}
	return out, nil
}

// Bump strictly increases g's counter in its own statement on the
// database handle, outside any caller transaction; BumpTx advances it
// inside one.
func (r *VersionRepo) Bump(g Group) error {
	res, err := r.db.Exec(`UPDATE sync_cursors SET version = version + 1 WHERE entity = ?`, string(g))
	if err != nil {
		return cherr.Wrap(cherr.Database, "bump sync cursor", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cherr.Wrap(cherr.Database, "bump sync cursor", err)
	}
	if n == 0 {
		return cherr.New(cherr.Internal, "unknown sync cursor group: "+string(g))
	}
	return nil
}

// BumpTx is Bump run against an open transaction, for callers that must
// advance the counter inside their own write transaction rather than in
// a follow-up statement.
func BumpTx(tx *sqlx.Tx, g Group) error {
	res, err := tx.Exec(`UPDATE sync_cursors SET version = version + 1 WHERE entity = ?`, string(g))
	if err != nil {
		return cherr.Wrap(cherr.Database, "bump sync cursor", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cherr.Wrap(cherr.Database, "bump sync cursor", err)
	}
	if n == 0 {
		return cherr.New(cherr.Internal, "unknown sync cursor group: "+string(g))
	}
	return nil
}

// Reset zeroes every counter (reset_sync_versions); every paired device
// re-syncs its full view on its next request.
func (r *VersionRepo) Reset() error {
	if _, err := r.db.Exec(`UPDATE sync_cursors SET version = 0`); err != nil {
		return cherr.Wrap(cherr.Database, "reset sync cursors", err)
	}
	return nil
}
