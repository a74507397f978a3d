// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingestion implements the five-stage document pipeline — import,
// extract, structure, store, coherence pass — described in spec §4.5.
package ingestion

import "github.com/coheara/engine/internal/store"

// Format is the magic-byte classification of a staged file.
type Format string

const (
	FormatImage       Format = "image"
	FormatDigitalPDF  Format = "digital_pdf"
	FormatScannedPDF  Format = "scanned_pdf"
	FormatPlainText   Format = "plain_text"
	FormatUnsupported Format = "unsupported"
)

// ExtractedPage is one page's sanitized text plus the confidence the
// extraction stage assigns it (1.0 for a clean digital text layer, the
// OCR engine's own confidence for rasterized pages).
type ExtractedPage struct {
	Text       string
	Confidence float64
	Language   string
}

// StructuredEntity is one parsed entity from the structuring model, still
// generic until Store maps it into its concrete entity-table row.
type StructuredEntity struct {
	Kind       string // "medication", "lab_result", "diagnosis", "allergy", "procedure", "referral", "instruction", "professional", "symptom", "appointment"
	Fields     map[string]any
	Confidence float64
}

// ImportOutcome is what Import returns: either a fresh document to carry
// through the rest of the pipeline, or an existing one it deduplicated
// against.
type ImportOutcome struct {
	Document    *store.Document
	Deduplicate bool
	NearDup     bool
}

// Result is the terminal outcome of running the full pipeline on one file.
type Result struct {
	DocumentID string
	Status     store.DocumentStatus
	Dedup      bool
	NearDup    bool
	Alerts     int
}
