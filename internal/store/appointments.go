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

// AppointmentRepo provides CRUD over appointments (spec §4.2, §6).
type AppointmentRepo struct{ db *DB }

func NewAppointmentRepo(db *DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

func (r *AppointmentRepo) Create(a Appointment) error {
	_, err := r.db.Exec(
		`INSERT INTO appointments (id, document_id, professional_id, scheduled_at, reason, location, prep_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, a.ProfessionalID, a.ScheduledAt, a.Reason, a.Location, a.PrepNotes, a.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert appointment", err)
	}
	return nil
}

func (r *AppointmentRepo) Get(id string) (*Appointment, error) {
	var a Appointment
	err := r.db.Get(&a, `SELECT * FROM appointments WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "appointment not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get appointment", err)
	}
	return &a, nil
}

// ListUpcoming returns every appointment scheduled at or after now,
// soonest first — the source for /appointments.
func (r *AppointmentRepo) ListUpcoming() ([]Appointment, error) {
	var appts []Appointment
	err := r.db.Select(&appts, `SELECT * FROM appointments WHERE scheduled_at >= datetime('now') ORDER BY scheduled_at ASC`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list upcoming appointments", err)
	}
	return appts, nil
}

// SetPrepNotes overwrites the prep brief the coherence pass (or a
// reviewer) attaches ahead of a visit — the body of GET /appointments/:id/prep.
func (r *AppointmentRepo) SetPrepNotes(id, notes string) error {
	res, err := r.db.Exec(`UPDATE appointments SET prep_notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return cherr.Wrap(cherr.Database, "update appointment prep notes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cherr.Wrap(cherr.Database, "update appointment prep notes", err)
	}
	if n == 0 {
		return cherr.New(cherr.NotFound, "appointment not found")
	}
	return nil
}
