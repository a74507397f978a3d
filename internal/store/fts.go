// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"regexp"
	"strings"

	"github.com/coheara/engine/pkg/cherr"
)

// SearchRepo indexes and queries the search_index shadow table (spec
// §4.3): a per-row (title, professional_name, content_summary) string
// set, tokenized identically at index and query time so identical
// queries return identical orderings.
type SearchRepo struct{ db *DB }

func NewSearchRepo(db *DB) *SearchRepo { return &SearchRepo{db: db} }

// tokenPattern strips everything except letters, digits, whitespace,
// hyphens, and apostrophes before prefix-matching each surviving term.
var tokenPattern = regexp.MustCompile(`[^\p{L}\p{N}\s'-]+`)

func tokenize(s string) []string {
	cleaned := tokenPattern.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Fields(cleaned)
}

// Index upserts a document's searchable text.
func (r *SearchRepo) Index(documentID, title, professionalName, contentSummary string) error {
	var existing int
	_ = r.db.Get(&existing, `SELECT rowid FROM search_index WHERE document_id = ?`, documentID)
	if existing > 0 {
		_, err := r.db.Exec(`UPDATE search_index SET title = ?, professional_name = ?, content_summary = ? WHERE document_id = ?`,
			title, professionalName, contentSummary, documentID)
		if err != nil {
			return cherr.Wrap(cherr.Database, "update search index", err)
		}
		return nil
	}
	_, err := r.db.Exec(`INSERT INTO search_index (document_id, title, professional_name, content_summary) VALUES (?, ?, ?, ?)`,
		documentID, title, professionalName, contentSummary)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert search index", err)
	}
	return nil
}

// HasEntry reports whether a document has a search_index row, used by
// the consistency checker's missing_chunks scan.
func (r *SearchRepo) HasEntry(documentID string) (bool, error) {
	var count int
	if err := r.db.Get(&count, `SELECT COUNT(1) FROM search_index WHERE document_id = ?`, documentID); err != nil {
		return false, cherr.Wrap(cherr.Database, "check search index entry", err)
	}
	return count > 0, nil
}

// ListOrphaned returns every search_index document id with no matching
// row in documents, for the consistency checker's orphaned_chunks scan.
func (r *SearchRepo) ListOrphaned() ([]string, error) {
	var ids []string
	err := r.db.Select(&ids,
		`SELECT document_id FROM search_index WHERE document_id NOT IN (SELECT id FROM documents)`)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "list orphaned search index rows", err)
	}
	return ids, nil
}

// DeleteForDocument removes a document's search_index row, used to
// repair an orphaned_chunks finding.
func (r *SearchRepo) DeleteForDocument(documentID string) error {
	if _, err := r.db.Exec(`DELETE FROM search_index WHERE document_id = ?`, documentID); err != nil {
		return cherr.Wrap(cherr.Database, "delete search index row", err)
	}
	return nil
}

// SearchResult is one matched document id with its match score.
type SearchResult struct {
	DocumentID string
	Score      int
}

// Search tokenizes query the same way Index's fields are stored, then
// prefix-matches each surviving term against title, professional_name,
// and content_summary, ranking by how many distinct terms matched across
// how many fields. The contract is deterministic ordering for identical
// queries, not literal BM25; ties break on document_id for stability.
func (r *SearchRepo) Search(query string) ([]SearchResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	type row struct {
		DocumentID       string `db:"document_id"`
		Title            string `db:"title"`
		ProfessionalName string `db:"professional_name"`
		ContentSummary   string `db:"content_summary"`
	}
	var rows []row
	if err := r.db.Select(&rows, `SELECT document_id, title, professional_name, content_summary FROM search_index`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "scan search index", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, rw := range rows {
		score := scoreRow(terms, rw.Title, rw.ProfessionalName, rw.ContentSummary)
		if score > 0 {
			results = append(results, SearchResult{DocumentID: rw.DocumentID, Score: score})
		}
	}

	sortResults(results)
	return results, nil
}

func scoreRow(terms []string, fields ...string) int {
	score := 0
	for _, term := range terms {
		matched := false
		for _, field := range fields {
			for _, tok := range tokenize(field) {
				if strings.HasPrefix(tok, term) {
					score++
					matched = true
				}
			}
		}
		if matched {
			score++ // bonus for matching the term at all, independent of field count
		}
	}
	return score
}

func sortResults(results []SearchResult) {
	// Stable insertion sort: result sets are small (single-profile scale)
	// and determinism under ties matters more than asymptotic speed here.
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && less(results[j], results[j-1]) {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}
}

func less(a, b SearchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocumentID < b.DocumentID
}
