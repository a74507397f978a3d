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

// MedicationRepo provides CRUD and de-duplication queries over medications.
type MedicationRepo struct{ db *DB }

func NewMedicationRepo(db *DB) *MedicationRepo { return &MedicationRepo{db: db} }

// FindActiveDuplicate looks for an active medication with the same
// generic name whose started_at falls within ±windowDays of asOf. Used
// by the ingestion store stage (spec §4.5) to surface a duplicate
// coherence alert instead of inserting a second row.
func (r *MedicationRepo) FindActiveDuplicate(genericName string, asOf time.Time, windowDays int) (*Medication, error) {
	lower := asOf.AddDate(0, 0, -windowDays)
	upper := asOf.AddDate(0, 0, windowDays)
	var meds []Medication
	err := r.db.Select(&meds,
		`SELECT * FROM medications WHERE generic_name = ? AND status = 'active' AND started_at IS NOT NULL AND started_at BETWEEN ? AND ?`,
		genericName, lower, upper)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "find active medication duplicate", err)
	}
	if len(meds) == 0 {
		return nil, nil
	}
	return &meds[0], nil
}

// Create inserts a new medication row.
func (r *MedicationRepo) Create(m Medication) error {
	_, err := r.db.Exec(
		`INSERT INTO medications (id, document_id, generic_name, brand_name, dose_value, dose_unit, status, professional_id, confidence, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DocumentID, m.GenericName, m.BrandName, m.DoseValue, m.DoseUnit, m.Status, m.ProfessionalID, m.Confidence, m.StartedAt, m.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert medication", err)
	}
	return nil
}

// Get fetches a medication by id, for GET /medications/:id.
func (r *MedicationRepo) Get(id string) (*Medication, error) {
	var m Medication
	err := r.db.Get(&m, `SELECT * FROM medications WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "medication not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get medication", err)
	}
	return &m, nil
}

// ListActive returns every medication currently marked active.
func (r *MedicationRepo) ListActive() ([]Medication, error) {
	var meds []Medication
	if err := r.db.Select(&meds, `SELECT * FROM medications WHERE status = 'active' ORDER BY created_at DESC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list active medications", err)
	}
	return meds, nil
}

// ListByDocument returns every medication derived from a document.
func (r *MedicationRepo) ListByDocument(documentID string) ([]Medication, error) {
	var meds []Medication
	if err := r.db.Select(&meds, `SELECT * FROM medications WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list medications by document", err)
	}
	return meds, nil
}
