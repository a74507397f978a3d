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

// SymptomRepo provides CRUD over symptoms, both the document-derived
// kind the structuring pass emits and the journal entries a patient
// records directly through POST /journal/record.
type SymptomRepo struct{ db *DB }

func NewSymptomRepo(db *DB) *SymptomRepo { return &SymptomRepo{db: db} }

func (r *SymptomRepo) Create(s Symptom) error {
	_, err := r.db.Exec(
		`INSERT INTO symptoms (id, document_id, description, onset_at, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.DocumentID, s.Description, s.OnsetAt, s.Confidence, s.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert symptom", err)
	}
	return nil
}

func (r *SymptomRepo) Get(id string) (*Symptom, error) {
	var s Symptom
	err := r.db.Get(&s, `SELECT * FROM symptoms WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "symptom not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get symptom", err)
	}
	return &s, nil
}

// ListByDocument returns every symptom derived from a document.
func (r *SymptomRepo) ListByDocument(documentID string) ([]Symptom, error) {
	var rows []Symptom
	if err := r.db.Select(&rows, `SELECT * FROM symptoms WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list symptoms by document", err)
	}
	return rows, nil
}

// ListJournal returns patient-recorded symptoms (document_id IS NULL),
// most recent first, optionally bounded to [from, to] on created_at —
// the source for GET /journal/history.
func (r *SymptomRepo) ListJournal(from, to *time.Time) ([]Symptom, error) {
	query := `SELECT * FROM symptoms WHERE document_id IS NULL`
	args := []any{}
	if from != nil {
		query += ` AND created_at >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND created_at <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY created_at DESC`

	var rows []Symptom
	if err := r.db.Select(&rows, query, args...); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list journal symptoms", err)
	}
	return rows, nil
}
