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
	"errors"
)

// ErrMessageBlocked is returned when a redactor refuses to let content
// through at all (as opposed to redacting part of it).
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is the outcome of running content through a PHIRedactor.
type FilterResult struct {
	Original    string
	Filtered    string
	WasModified bool
	WasBlocked  bool
	BlockReason string
	Detections  []Detection
}

// Detection describes one redaction applied within a FilterResult.
type Detection struct {
	Type        string // e.g. "lab_value", "medication_dose", "bearer_token"
	Location    string
	Action      string // "redacted", "masked", "blocked"
	Replacement string
}

// PHIRedactor is the extension point for scrubbing clinical content before
// it reaches a destination that must not see it verbatim: an export
// sink, an audit-log metadata blob, or an external structuring-model
// call operating in a mode that forbids raw PHI in the prompt.
//
// The in-process pipeline (internal/ingestion) does not go through this
// interface — it works with plaintext by necessity, inside the session
// that already holds the profile key. This interface exists for the
// boundary outward: what a LogExporter or an external model adapter is
// handed.
type PHIRedactor interface {
	FilterOutbound(ctx context.Context, content string) (*FilterResult, error)
}

// NopPHIRedactor passes content through unchanged. This is the default:
// the engine has no remote log sink or cloud model backend wired, so
// there is no outbound boundary to redact across yet.
type NopPHIRedactor struct{}

func (f *NopPHIRedactor) FilterOutbound(ctx context.Context, content string) (*FilterResult, error) {
	return &FilterResult{Original: content, Filtered: content}, nil
}

var _ PHIRedactor = (*NopPHIRedactor)(nil)
