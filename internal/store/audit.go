// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/coheara/engine/pkg/cherr"
	"github.com/coheara/engine/pkg/extensions"
)

// AuditRepo persists the hash-chained audit log against audit_entries
// and implements both extensions.AuditLogger and extensions.RequestAuditor;
// internal/coherence wires the same repo behind both interfaces so every
// privileged action is both queryable as an AuditEvent and verifiable as
// a HashChainEntry.
type AuditRepo struct{ db *DB }

func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

var _ extensions.AuditLogger = (*AuditRepo)(nil)
var _ extensions.RequestAuditor = (*AuditRepo)(nil)

// Log implements extensions.AuditLogger by appending one hash-chained row.
func (r *AuditRepo) Log(ctx context.Context, event extensions.AuditEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return cherr.Wrap(cherr.Internal, "marshal audit metadata", err)
	}
	content := event.Action + "|" + event.Subject + "|" + string(metadataJSON)
	return r.appendEntry(event.ProfileID, string(event.Source), event.DeviceID, event.Action, event.Subject, content)
}

// RecordEntry implements extensions.RequestAuditor directly against the
// same table, for callers that already have a HashChainEntry's content
// type rather than an AuditEvent.
func (r *AuditRepo) RecordEntry(ctx context.Context, entry extensions.HashChainEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return cherr.Wrap(cherr.Internal, "marshal audit metadata", err)
	}
	return r.appendEntry(entry.ProfileID, "system", "", entry.ContentType, "", string(metadataJSON))
}

func (r *AuditRepo) appendEntry(profileID, source, deviceID, action, subject, content string) error {
	contentHash := sha256Hex([]byte(content))

	var previousHash string
	err := r.db.Get(&previousHash, `SELECT chain_hash FROM audit_entries ORDER BY sequence_num DESC LIMIT 1`)
	if err != nil && err != sql.ErrNoRows {
		return cherr.Wrap(cherr.Database, "read last audit entry", err)
	}

	chainHash := sha256Hex([]byte(previousHash + contentHash))

	_, err = r.db.Exec(
		`INSERT INTO audit_entries (source, device_id, action, subject, metadata, content_hash, previous_hash, chain_hash, created_at)
		 VALUES (?, ?, ?, ?, '{}', ?, ?, ?, ?)`,
		source, deviceID, action, subject, contentHash, previousHash, chainHash, time.Now().UTC(),
	)
	if err != nil {
		return cherr.Wrap(cherr.Database, "insert audit entry", err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Query implements extensions.AuditLogger.
func (r *AuditRepo) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	query := `SELECT sequence_num, source, device_id, action, subject, created_at FROM audit_entries WHERE 1=1`
	var args []any
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}
	if !filter.StartTime.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.EndTime)
	}
	query += ` ORDER BY sequence_num DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "query audit entries", err)
	}
	defer rows.Close()

	events := []extensions.AuditEvent{}
	for rows.Next() {
		var seq int
		var source, deviceID, action, subject string
		var createdAt time.Time
		if err := rows.Scan(&seq, &source, &deviceID, &action, &subject, &createdAt); err != nil {
			return nil, cherr.Wrap(cherr.Database, "scan audit entry", err)
		}
		events = append(events, extensions.AuditEvent{
			Timestamp: createdAt,
			Source:    extensions.AuditSource(source),
			DeviceID:  deviceID,
			Action:    action,
			Subject:   subject,
		})
	}
	return events, nil
}

// Prune implements extensions.AuditLogger's retention-window trim.
func (r *AuditRepo) Prune(ctx context.Context, profileID string, olderThan time.Time) (int, error) {
	res, err := r.db.Exec(`DELETE FROM audit_entries WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, cherr.Wrap(cherr.Database, "prune audit entries", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetLastEntry implements extensions.RequestAuditor.
func (r *AuditRepo) GetLastEntry(ctx context.Context, profileID string) (*extensions.HashChainEntry, error) {
	var row AuditEntryRow
	err := r.db.Get(&row, `SELECT * FROM audit_entries ORDER BY sequence_num DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Database, "get last audit entry", err)
	}
	return rowToEntry(row), nil
}

// GetChainLength implements extensions.RequestAuditor.
func (r *AuditRepo) GetChainLength(ctx context.Context, profileID string) (int, error) {
	var count int
	if err := r.db.Get(&count, `SELECT COUNT(1) FROM audit_entries`); err != nil {
		return 0, cherr.Wrap(cherr.Database, "count audit entries", err)
	}
	return count, nil
}

// VerifyChain implements extensions.RequestAuditor: it recomputes every
// ChainHash from its PreviousHash and ContentHash and reports the first
// point of divergence, if any.
func (r *AuditRepo) VerifyChain(ctx context.Context, profileID string) (*extensions.ChainVerificationResult, error) {
	var rows []AuditEntryRow
	if err := r.db.Select(&rows, `SELECT * FROM audit_entries ORDER BY sequence_num ASC`); err != nil {
		return nil, cherr.Wrap(cherr.Database, "list audit entries for verification", err)
	}

	expectedPrevious := ""
	for _, row := range rows {
		if row.PreviousHash != expectedPrevious {
			return &extensions.ChainVerificationResult{
				IsValid:      false,
				TotalEntries: len(rows),
				BreakPoint:   row.SequenceNum,
				ExpectedHash: expectedPrevious,
				ActualHash:   row.PreviousHash,
				Message:      "previous_hash does not match the prior entry's chain_hash",
			}, nil
		}
		expected := sha256Hex([]byte(row.PreviousHash + row.ContentHash))
		if expected != row.ChainHash {
			return &extensions.ChainVerificationResult{
				IsValid:      false,
				TotalEntries: len(rows),
				BreakPoint:   row.SequenceNum,
				ExpectedHash: expected,
				ActualHash:   row.ChainHash,
				Message:      "chain_hash does not match SHA256(previous_hash || content_hash)",
			}, nil
		}
		expectedPrevious = row.ChainHash
	}

	return &extensions.ChainVerificationResult{IsValid: true, TotalEntries: len(rows), Message: "chain intact"}, nil
}

func rowToEntry(row AuditEntryRow) *extensions.HashChainEntry {
	return &extensions.HashChainEntry{
		SequenceNum:  row.SequenceNum,
		ContentHash:  row.ContentHash,
		PreviousHash: row.PreviousHash,
		ChainHash:    row.ChainHash,
		Timestamp:    row.CreatedAt,
		ContentType:  row.Action,
	}
}
