// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"time"

	"github.com/coheara/engine/pkg/cherr"
)

// TrustRepo manages the single-row profile_trust aggregate (spec §4.3,
// §4.6). Drift between this aggregate and the documents table is not
// fatal; Recompute is the consistency checker's repair action.
type TrustRepo struct{ db *DB }

func NewTrustRepo(db *DB) *TrustRepo { return &TrustRepo{db: db} }

func (r *TrustRepo) Get() (*ProfileTrust, error) {
	var t ProfileTrust
	if err := r.db.Get(&t, `SELECT * FROM profile_trust WHERE id = 1`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "get profile trust", err)
	}
	return &t, nil
}

// IncrementDocuments bumps total_documents and, if verified, documents_verified.
func (r *TrustRepo) IncrementDocuments(verified bool) error {
	query := `UPDATE profile_trust SET total_documents = total_documents + 1, last_updated = ? WHERE id = 1`
	if verified {
		query = `UPDATE profile_trust SET total_documents = total_documents + 1, documents_verified = documents_verified + 1, last_updated = ? WHERE id = 1`
	}
	if _, err := r.db.Exec(query, time.Now().UTC()); err != nil {
		return cherr.Wrap(cherr.Database, "increment profile trust", err)
	}
	return nil
}

// IncrementCorrected bumps documents_corrected, called when a reviewer
// edits an extracted value before confirming.
func (r *TrustRepo) IncrementCorrected() error {
	_, err := r.db.Exec(`UPDATE profile_trust SET documents_corrected = documents_corrected + 1, last_updated = ? WHERE id = 1`, time.Now().UTC())
	if err != nil {
		return cherr.Wrap(cherr.Database, "increment profile trust corrected", err)
	}
	return nil
}

// Recompute derives every counter from the documents table directly,
// discarding any drift. Idempotent: running it twice in a row produces
// the same result.
func (r *TrustRepo) Recompute() error {
	var total, verified, corrected int
	if err := r.db.Get(&total, `SELECT COUNT(1) FROM documents`); err != nil {
		return cherr.Wrap(cherr.Database, "count documents", err)
	}
	if err := r.db.Get(&verified, `SELECT COUNT(1) FROM documents WHERE status = 'confirmed'`); err != nil {
		return cherr.Wrap(cherr.Database, "count verified documents", err)
	}
	if err := r.db.Get(&corrected, `SELECT COUNT(1) FROM documents WHERE status = 'pending_review'`); err != nil {
		return cherr.Wrap(cherr.Database, "count corrected documents", err)
	}

	accuracy := 1.0
	if total > 0 {
		accuracy = float64(verified) / float64(total)
	}

	_, err := r.db.Exec(
		`UPDATE profile_trust SET total_documents = ?, documents_verified = ?, documents_corrected = ?, extraction_accuracy = ?, last_updated = ? WHERE id = 1`,
		total, verified, corrected, accuracy, time.Now().UTC(),
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "recompute profile trust", err)
	}
	return nil
}
