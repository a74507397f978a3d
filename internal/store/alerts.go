// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"database/sql"

	"github.com/coheara/engine/pkg/cherr"
)

// AlertRepo provides CRUD over coherence_alerts and dismissed_alerts
// (spec §4.6).
type AlertRepo struct{ db *DB }

func NewAlertRepo(db *DB) *AlertRepo { return &AlertRepo{db: db} }

func (r *AlertRepo) Create(a CoherenceAlert) error {
	_, err := r.db.Exec(
		`INSERT INTO coherence_alerts (id, category, severity, document_id, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Category, a.Severity, a.DocumentID, a.Detail, a.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert coherence alert", err)
	}
	return nil
}

func (r *AlertRepo) Get(id string) (*CoherenceAlert, error) {
	var a CoherenceAlert
	err := r.db.Get(&a, `SELECT * FROM coherence_alerts WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "alert not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get coherence alert", err)
	}
	return &a, nil
}

// ListActive returns every alert whose id has not been dismissed,
// optionally filtered by severity.
func (r *AlertRepo) ListActive(severity string) ([]CoherenceAlert, error) {
	var alerts []CoherenceAlert
	query := `SELECT * FROM coherence_alerts WHERE id NOT IN (SELECT entity_id FROM dismissed_alerts)`
	args := []any{}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY created_at DESC`
	if err := r.db.Select(&alerts, query, args...); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list active coherence alerts", err)
	}
	return alerts, nil
}

// Dismiss records a dismissal for an entity id. Every alert kind except
// critical requires only a non-empty reason, enforced by the caller
// (internal/coherence) before this is called; critical alerts go through
// the two-step AskConfirmation/ConfirmDismissal state machine there.
func (r *AlertRepo) Dismiss(d DismissedAlert) error {
	_, err := r.db.Exec(
		`INSERT INTO dismissed_alerts (id, alert_type, entity_id, reason, dismissed_by, dismissed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.AlertType, d.EntityID, d.Reason, d.DismissedBy, d.DismissedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert dismissed alert", err)
	}
	return nil
}

// IsDismissed reports whether entityID already has a dismissal row.
func (r *AlertRepo) IsDismissed(entityID string) (bool, error) {
	var count int
	if err := r.db.Get(&count, `SELECT COUNT(1) FROM dismissed_alerts WHERE entity_id = ?`, entityID); err != nil {
		return false, cherr.Wrap(cherr.Database, "check dismissal", err)
	}
	return count > 0, nil
}
