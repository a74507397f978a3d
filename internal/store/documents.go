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

// DocumentRepo provides CRUD and lookup queries over the documents table.
type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo { return &DocumentRepo{db: db} }

// Create inserts a new document row with the status doc carries; the
// import pipeline passes StatusImported. profile_trust is not updated.
func (r *DocumentRepo) Create(doc Document) error {
	_, err := r.db.Exec(
		`INSERT INTO documents (id, format, content_hash, perceptual_hash, status, title, source_path, markdown_path, imported_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Format, doc.ContentHash, doc.PerceptualHash, doc.Status, doc.Title, doc.SourcePath, doc.MarkdownPath, doc.ImportedAt, doc.UpdatedAt,
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert document", err)
	}
	return nil
}

// Get fetches a document by id.
func (r *DocumentRepo) Get(id string) (*Document, error) {
	var doc Document
	err := r.db.Get(&doc, `SELECT * FROM documents WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, cherr.New(cherr.NotFound, "document not found")
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get document", err)
	}
	return &doc, nil
}

// FindByContentHash returns the document with an exact content hash
// match, used for import idempotency.
func (r *DocumentRepo) FindByContentHash(hash string) (*Document, error) {
	var doc Document
	err := r.db.Get(&doc, `SELECT * FROM documents WHERE content_hash = ? LIMIT 1`, hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "find document by content hash", err)
	}
	return &doc, nil
}

// FindPerceptualHashes returns every stored perceptual hash alongside its
// document id, for near-duplicate Hamming-distance comparison at import
// time.
func (r *DocumentRepo) FindPerceptualHashes() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT id, perceptual_hash FROM documents WHERE perceptual_hash != ''`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list perceptual hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, cherr.Wrap(cherr.Database, "scan perceptual hash row", err)
		}
		out[id] = hash
	}
	return out, nil
}

// SetStatus updates a document's pipeline status.
func (r *DocumentRepo) SetStatus(id string, status DocumentStatus) error {
	res, err := r.db.Exec(`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return cherr.Wrap(cherr.Database, "update document status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return cherr.New(cherr.NotFound, "document not found")
	}
	return nil
}

// SetMarkdownPath records where a document's encrypted structured
// markdown was written.
func (r *DocumentRepo) SetMarkdownPath(id, path string) error {
	_, err := r.db.Exec(`UPDATE documents SET markdown_path = ?, updated_at = ? WHERE id = ?`, path, time.Now().UTC(), id)
	if err != nil {
		return cherr.Wrap(cherr.Database, "update document markdown path", err)
	}
	return nil
}

// SetVerified records a document's automatic or manually-confirmed
// verification state (spec §4.5's confidence-propagation rule).
func (r *DocumentRepo) SetVerified(id string, verified bool) error {
	_, err := r.db.Exec(`UPDATE documents SET verified = ?, updated_at = ? WHERE id = ?`, verified, time.Now().UTC(), id)
	if err != nil {
		return cherr.Wrap(cherr.Database, "update document verified flag", err)
	}
	return nil
}

// ListByStatus returns every document currently in status.
func (r *DocumentRepo) ListByStatus(status DocumentStatus) ([]Document, error) {
	var docs []Document
	if err := r.db.Select(&docs, `SELECT * FROM documents WHERE status = ? ORDER BY imported_at`, status); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list documents by status", err)
	}
	return docs, nil
}

// List returns every document, most recently imported first.
func (r *DocumentRepo) List() ([]Document, error) {
	var docs []Document
	if err := r.db.Select(&docs, `SELECT * FROM documents ORDER BY imported_at DESC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list documents", err)
	}
	return docs, nil
}

// ListRecent returns the most recently imported documents, capped at
// limit, for the GET /timeline/recent dashboard feed.
func (r *DocumentRepo) ListRecent(limit int) ([]Document, error) {
	var docs []Document
	if err := r.db.Select(&docs, `SELECT * FROM documents ORDER BY imported_at DESC LIMIT ?`, limit); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list recent documents", err)
	}
	return docs, nil
}
