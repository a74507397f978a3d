// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "github.com/coheara/engine/pkg/cherr"

// LabResultRepo provides CRUD and critical-value queries over lab_results.
type LabResultRepo struct{ db *DB }

func NewLabResultRepo(db *DB) *LabResultRepo { return &LabResultRepo{db: db} }

// Create inserts a new lab result row.
func (r *LabResultRepo) Create(l LabResult) error {
	_, err := r.db.Exec(
		`INSERT INTO lab_results (id, document_id, test_name, value, unit, reference_low, reference_high, abnormal_flag, collected_at, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.DocumentID, l.TestName, l.Value, l.Unit, l.ReferenceLow, l.ReferenceHigh, l.AbnormalFlag, l.CollectedAt, l.Confidence, l.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert lab result", err)
	}
	return nil
}

// ListCritical returns every lab result flagged critical_low or
// critical_high, most recently collected first.
func (r *LabResultRepo) ListCritical() ([]LabResult, error) {
	var labs []LabResult
	err := r.db.Select(&labs,
		`SELECT * FROM lab_results WHERE abnormal_flag IN ('critical_low','critical_high') ORDER BY collected_at DESC`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list critical lab results", err)
	}
	return labs, nil
}

// ListByDocument returns every lab result derived from a document.
func (r *LabResultRepo) ListByDocument(documentID string) ([]LabResult, error) {
	var labs []LabResult
	if err := r.db.Select(&labs, `SELECT * FROM lab_results WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list lab results by document", err)
	}
	return labs, nil
}
