// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit tags every PHI decryption with an AuditEvent of its own,
// letting the existing hash-chained log double as a forensic trail of
// what protected health information was decrypted and when, without a
// second table alongside audit_entries.
package audit

import (
	"context"
	"time"

	"github.com/coheara/engine/pkg/extensions"
)

// Access tags are the two ways ciphertext in this store gets decrypted.
const (
	ActionDecryptMarkdown = "decrypt_markdown"
	ActionDecryptDBRow    = "decrypt_db_row"
)

// PHIAuditor records decryption events against the profile's audit log.
// It wraps an extensions.AuditLogger rather than replacing it — this is
// a convention over the action field, not a new store.
type PHIAuditor struct {
	log       extensions.AuditLogger
	profileID string
}

func NewPHIAuditor(log extensions.AuditLogger, profileID string) *PHIAuditor {
	return &PHIAuditor{log: log, profileID: profileID}
}

// RecordMarkdownDecryption logs one decrypt_markdown access for a document.
func (a *PHIAuditor) RecordMarkdownDecryption(ctx context.Context, source extensions.AuditSource, deviceID, documentID string) error {
	return a.record(ctx, source, deviceID, ActionDecryptMarkdown, documentID)
}

// RecordRowDecryption logs one decrypt_db_row access for an entity id.
func (a *PHIAuditor) RecordRowDecryption(ctx context.Context, source extensions.AuditSource, deviceID, entityID string) error {
	return a.record(ctx, source, deviceID, ActionDecryptDBRow, entityID)
}

func (a *PHIAuditor) record(ctx context.Context, source extensions.AuditSource, deviceID, action, subject string) error {
	return a.log.Log(ctx, extensions.AuditEvent{
		Timestamp: time.Now().UTC(),
		Source:    source,
		DeviceID:  deviceID,
		ProfileID: a.profileID,
		Action:    action,
		Subject:   subject,
	})
}

// Trail returns every recorded decryption event for a profile, most
// recent first, for forensic reconstruction of what PHI was decrypted
// and when.
func (a *PHIAuditor) Trail(ctx context.Context, limit int) ([]extensions.AuditEvent, error) {
	markdown, err := a.log.Query(ctx, extensions.AuditFilter{
		ProfileID: a.profileID, Action: ActionDecryptMarkdown, Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	rows, err := a.log.Query(ctx, extensions.AuditFilter{
		ProfileID: a.profileID, Action: ActionDecryptDBRow, Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	events := append(markdown, rows...)
	sortByTimestampDesc(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func sortByTimestampDesc(events []extensions.AuditEvent) {
	for i := 1; i < len(events); i++ {
		j := i
		for j > 0 && events[j].Timestamp.After(events[j-1].Timestamp) {
			events[j], events[j-1] = events[j-1], events[j]
			j--
		}
	}
}
