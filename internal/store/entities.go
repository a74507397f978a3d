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

// DiagnosisRepo provides CRUD over diagnoses.
type DiagnosisRepo struct{ db *DB }

func NewDiagnosisRepo(db *DB) *DiagnosisRepo { return &DiagnosisRepo{db: db} }

func (r *DiagnosisRepo) Create(d Diagnosis) error {
	_, err := r.db.Exec(
		`INSERT INTO diagnoses (id, document_id, description, status, diagnosed_at, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DocumentID, d.Description, d.Status, d.DiagnosedAt, d.Confidence, d.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert diagnosis", err)
	}
	return nil
}

func (r *DiagnosisRepo) ListActive() ([]Diagnosis, error) {
	var rows []Diagnosis
	if err := r.db.Select(&rows, `SELECT * FROM diagnoses WHERE status = 'active' ORDER BY created_at DESC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list active diagnoses", err)
	}
	return rows, nil
}

// ListByDocument returns every diagnosis derived from a document.
func (r *DiagnosisRepo) ListByDocument(documentID string) ([]Diagnosis, error) {
	var rows []Diagnosis
	if err := r.db.Select(&rows, `SELECT * FROM diagnoses WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list diagnoses by document", err)
	}
	return rows, nil
}

// AllergyRepo provides CRUD over allergies.
type AllergyRepo struct{ db *DB }

func NewAllergyRepo(db *DB) *AllergyRepo { return &AllergyRepo{db: db} }

func (r *AllergyRepo) Create(a Allergy) error {
	_, err := r.db.Exec(
		`INSERT INTO allergies (id, document_id, substance, reaction, severity, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, a.Substance, a.Reaction, a.Severity, a.Confidence, a.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert allergy", err)
	}
	return nil
}

func (r *AllergyRepo) List() ([]Allergy, error) {
	var rows []Allergy
	if err := r.db.Select(&rows, `SELECT * FROM allergies ORDER BY created_at DESC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list allergies", err)
	}
	return rows, nil
}

// ListByDocument returns every allergy derived from a document.
func (r *AllergyRepo) ListByDocument(documentID string) ([]Allergy, error) {
	var rows []Allergy
	if err := r.db.Select(&rows, `SELECT * FROM allergies WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list allergies by document", err)
	}
	return rows, nil
}

// ProcedureRepo provides CRUD over procedures.
type ProcedureRepo struct{ db *DB }

func NewProcedureRepo(db *DB) *ProcedureRepo { return &ProcedureRepo{db: db} }

func (r *ProcedureRepo) Create(p Procedure) error {
	_, err := r.db.Exec(
		`INSERT INTO procedures (id, document_id, description, performed_at, professional_id, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DocumentID, p.Description, p.PerformedAt, p.ProfessionalID, p.Confidence, p.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert procedure", err)
	}
	return nil
}

// ListByDocument returns every procedure derived from a document.
func (r *ProcedureRepo) ListByDocument(documentID string) ([]Procedure, error) {
	var rows []Procedure
	if err := r.db.Select(&rows, `SELECT * FROM procedures WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list procedures by document", err)
	}
	return rows, nil
}

// ReferralRepo provides CRUD over referrals.
type ReferralRepo struct{ db *DB }

func NewReferralRepo(db *DB) *ReferralRepo { return &ReferralRepo{db: db} }

func (r *ReferralRepo) Create(ref Referral) error {
	_, err := r.db.Exec(
		`INSERT INTO referrals (id, document_id, to_specialty, reason, professional_id, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, ref.DocumentID, ref.ToSpecialty, ref.Reason, ref.ProfessionalID, ref.Confidence, ref.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert referral", err)
	}
	return nil
}

// ListByDocument returns every referral derived from a document.
func (r *ReferralRepo) ListByDocument(documentID string) ([]Referral, error) {
	var rows []Referral
	if err := r.db.Select(&rows, `SELECT * FROM referrals WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list referrals by document", err)
	}
	return rows, nil
}

// InstructionRepo provides CRUD over instructions.
type InstructionRepo struct{ db *DB }

func NewInstructionRepo(db *DB) *InstructionRepo { return &InstructionRepo{db: db} }

func (r *InstructionRepo) Create(i Instruction) error {
	_, err := r.db.Exec(
		`INSERT INTO instructions (id, document_id, text, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
		i.ID, i.DocumentID, i.Text, i.Confidence, i.CreatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert instruction", err)
	}
	return nil
}

// ListByDocument returns every instruction derived from a document.
func (r *InstructionRepo) ListByDocument(documentID string) ([]Instruction, error) {
	var rows []Instruction
	if err := r.db.Select(&rows, `SELECT * FROM instructions WHERE document_id = ?`, documentID); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list instructions by document", err)
	}
	return rows, nil
}

// ProfessionalRepo resolves and creates care providers by name.
type ProfessionalRepo struct{ db *DB }

func NewProfessionalRepo(db *DB) *ProfessionalRepo { return &ProfessionalRepo{db: db} }

// ResolveOrCreate finds a professional by exact name, creating one if
// none exists yet (spec §4.5 store stage: "Professionals are resolved by
// name; missing entries are created").
func (r *ProfessionalRepo) ResolveOrCreate(p Professional) (*Professional, error) {
	var existing Professional
	err := r.db.Get(&existing, `SELECT * FROM professionals WHERE name = ?`, p.Name)
	if err == nil {
		return &existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, cherr.Wrap(cherr.Database, "look up professional", err)
	}

	_, err = r.db.Exec(`INSERT INTO professionals (id, name, specialty, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Specialty, p.CreatedAt)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "insert professional", err)
	}
	return &p, nil
}
