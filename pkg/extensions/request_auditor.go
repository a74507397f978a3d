// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"time"
)

// HashChainEntry is one link of a tamper-evident chain: ChainHash =
// SHA256(PreviousHash ∥ ContentHash). Breaking, inserting, or reordering
// an entry invalidates every chain hash after it, so a VerifyChain pass
// detects after-the-fact modification of the audit trail.
type HashChainEntry struct {
	ProfileID    string
	SequenceNum  int
	ContentHash  string
	PreviousHash string
	ChainHash    string
	Timestamp    time.Time
	ContentType  string // "unlock", "import", "dismiss_alert", "pair_device", "erase_profile", ...
	Metadata     Metadata
}

// ChainVerificationResult reports whether a profile's audit chain is intact.
type ChainVerificationResult struct {
	IsValid      bool
	TotalEntries int
	BreakPoint   int // sequence number where integrity failed; 0 if valid
	ExpectedHash string
	ActualHash   string
	Message      string
}

// RequestAuditor persists HashChainEntry rows per profile and can verify
// the chain's integrity on demand. internal/store.AuditRepo implements
// this against the encrypted relational store: each profile's audit_entries
// table is one hash chain, rooted at profile creation.
type RequestAuditor interface {
	RecordEntry(ctx context.Context, entry HashChainEntry) error
	GetLastEntry(ctx context.Context, profileID string) (*HashChainEntry, error)
	VerifyChain(ctx context.Context, profileID string) (*ChainVerificationResult, error)
	GetChainLength(ctx context.Context, profileID string) (int, error)
}

// NopRequestAuditor discards everything. Used only in tests of callers
// that don't exercise the audit path itself.
type NopRequestAuditor struct{}

func (a *NopRequestAuditor) RecordEntry(_ context.Context, _ HashChainEntry) error {
	return nil
}

func (a *NopRequestAuditor) GetLastEntry(_ context.Context, _ string) (*HashChainEntry, error) {
	return nil, nil
}

func (a *NopRequestAuditor) VerifyChain(_ context.Context, _ string) (*ChainVerificationResult, error) {
	return &ChainVerificationResult{IsValid: true, Message: "no audit entries (NopRequestAuditor)"}, nil
}

func (a *NopRequestAuditor) GetChainLength(_ context.Context, _ string) (int, error) {
	return 0, nil
}

var _ RequestAuditor = (*NopRequestAuditor)(nil)
