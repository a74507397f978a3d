// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "time"

// DocumentFormat is the magic-byte classification from the import stage.
type DocumentFormat string

const (
	FormatImage       DocumentFormat = "image"
	FormatDigitalPDF  DocumentFormat = "digital_pdf"
	FormatScannedPDF  DocumentFormat = "scanned_pdf"
	FormatPlainText   DocumentFormat = "plain_text"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusImported      DocumentStatus = "imported"
	StatusExtracting     DocumentStatus = "extracting"
	StatusStructuring    DocumentStatus = "structuring"
	StatusPendingReview  DocumentStatus = "pending_review"
	StatusConfirmed      DocumentStatus = "confirmed"
	StatusFailed         DocumentStatus = "failed"
)

// Document is one imported source file and its pipeline state.
type Document struct {
	ID             string         `db:"id"`
	Format         DocumentFormat `db:"format"`
	ContentHash    string         `db:"content_hash"`
	PerceptualHash string         `db:"perceptual_hash"`
	Status         DocumentStatus `db:"status"`
	Title          string         `db:"title"`
	SourcePath     string         `db:"source_path"`
	MarkdownPath   string         `db:"markdown_path"`
	Verified       bool           `db:"verified"`
	ImportedAt     time.Time      `db:"imported_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// AbnormalFlag classifies a lab result against its reference range.
type AbnormalFlag string

const (
	FlagNormal       AbnormalFlag = "normal"
	FlagLow          AbnormalFlag = "low"
	FlagHigh         AbnormalFlag = "high"
	FlagCriticalLow  AbnormalFlag = "critical_low"
	FlagCriticalHigh AbnormalFlag = "critical_high"
)

// LabResult is one structured lab value linked to its source document.
type LabResult struct {
	ID            string       `db:"id"`
	DocumentID    string       `db:"document_id"`
	TestName      string       `db:"test_name"`
	Value         float64      `db:"value"`
	Unit          string       `db:"unit"`
	ReferenceLow  *float64     `db:"reference_low"`
	ReferenceHigh *float64     `db:"reference_high"`
	AbnormalFlag  AbnormalFlag `db:"abnormal_flag"`
	CollectedAt   time.Time    `db:"collected_at"`
	Confidence    float64      `db:"confidence"`
	CreatedAt     time.Time    `db:"created_at"`
}

// MedicationStatus distinguishes active prescriptions from discontinued ones.
type MedicationStatus string

const (
	MedicationActive        MedicationStatus = "active"
	MedicationDiscontinued  MedicationStatus = "discontinued"
)

// Medication is one structured prescription row.
type Medication struct {
	ID             string           `db:"id"`
	DocumentID     string           `db:"document_id"`
	GenericName    string           `db:"generic_name"`
	BrandName      string           `db:"brand_name"`
	DoseValue      float64          `db:"dose_value"`
	DoseUnit       string           `db:"dose_unit"`
	Status         MedicationStatus `db:"status"`
	ProfessionalID *string          `db:"professional_id"`
	Confidence     float64          `db:"confidence"`
	StartedAt      *time.Time       `db:"started_at"`
	CreatedAt      time.Time        `db:"created_at"`
}

// Diagnosis is one structured diagnosis row.
type Diagnosis struct {
	ID          string    `db:"id"`
	DocumentID  string    `db:"document_id"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	DiagnosedAt *time.Time `db:"diagnosed_at"`
	Confidence  float64   `db:"confidence"`
	CreatedAt   time.Time `db:"created_at"`
}

// Allergy is one structured allergy/intolerance row.
type Allergy struct {
	ID         string    `db:"id"`
	DocumentID string    `db:"document_id"`
	Substance  string    `db:"substance"`
	Reaction   string    `db:"reaction"`
	Severity   string    `db:"severity"`
	Confidence float64   `db:"confidence"`
	CreatedAt  time.Time `db:"created_at"`
}

// Procedure is one structured procedure row.
type Procedure struct {
	ID             string     `db:"id"`
	DocumentID     string     `db:"document_id"`
	Description    string     `db:"description"`
	PerformedAt    *time.Time `db:"performed_at"`
	ProfessionalID *string    `db:"professional_id"`
	Confidence     float64    `db:"confidence"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Referral is one structured specialist-referral row.
type Referral struct {
	ID             string    `db:"id"`
	DocumentID     string    `db:"document_id"`
	ToSpecialty    string    `db:"to_specialty"`
	Reason         string    `db:"reason"`
	ProfessionalID *string   `db:"professional_id"`
	Confidence     float64   `db:"confidence"`
	CreatedAt      time.Time `db:"created_at"`
}

// Instruction is one structured care instruction row.
type Instruction struct {
	ID         string    `db:"id"`
	DocumentID string    `db:"document_id"`
	Text       string    `db:"text"`
	Confidence float64   `db:"confidence"`
	CreatedAt  time.Time `db:"created_at"`
}

// Symptom is one patient-reported or document-derived symptom row.
// DocumentID is nil for a journal entry the patient recorded directly
// (spec §6 POST /journal/record), and set when a structuring pass
// derived the symptom from an ingested document.
type Symptom struct {
	ID          string     `db:"id"`
	DocumentID  *string    `db:"document_id"`
	Description string     `db:"description"`
	OnsetAt     *time.Time `db:"onset_at"`
	Confidence  float64    `db:"confidence"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Conversation groups a series of chat messages (spec §6 /chat/*).
type Conversation struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChatSender distinguishes the patient's own messages from the
// assistant's replies within a conversation.
type ChatSender string

const (
	SenderPatient   ChatSender = "patient"
	SenderAssistant ChatSender = "assistant"
)

// ChatMessage is one message within a Conversation.
type ChatMessage struct {
	ID             string     `db:"id"`
	ConversationID string     `db:"conversation_id"`
	Sender         ChatSender `db:"sender"`
	Body           string     `db:"body"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Professional is a care provider resolved by name.
type Professional struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Specialty string    `db:"specialty"`
	CreatedAt time.Time `db:"created_at"`
}

// CoherenceAlert is one row written by the coherence pass (spec §4.6).
type CoherenceAlert struct {
	ID         string    `db:"id"`
	Category   string    `db:"category"`
	Severity   string    `db:"severity"`
	DocumentID *string   `db:"document_id"`
	Detail     string    `db:"detail"`
	CreatedAt  time.Time `db:"created_at"`
}

// DismissedAlert tags an alert id as dismissed, with the required reason.
type DismissedAlert struct {
	ID          string    `db:"id"`
	AlertType   string    `db:"alert_type"`
	EntityID    string    `db:"entity_id"`
	Reason      string    `db:"reason"`
	DismissedBy string    `db:"dismissed_by"`
	DismissedAt time.Time `db:"dismissed_at"`
}

// AuditEntryRow is the persisted form of a hash-chained audit entry.
type AuditEntryRow struct {
	SequenceNum  int       `db:"sequence_num"`
	Source       string    `db:"source"`
	DeviceID     string    `db:"device_id"`
	Action       string    `db:"action"`
	Subject      string    `db:"subject"`
	Metadata     string    `db:"metadata"`
	ContentHash  string    `db:"content_hash"`
	PreviousHash string    `db:"previous_hash"`
	ChainHash    string    `db:"chain_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Appointment is a scheduled or past visit, optionally derived from a
// referral/instruction document and optionally prep-annotated by the
// coherence pass (spec §4.2, §4.11).
type Appointment struct {
	ID             string    `db:"id"`
	DocumentID     *string   `db:"document_id"`
	ProfessionalID *string   `db:"professional_id"`
	ScheduledAt    time.Time `db:"scheduled_at"`
	Reason         string    `db:"reason"`
	Location       string    `db:"location"`
	PrepNotes      string    `db:"prep_notes"`
	CreatedAt      time.Time `db:"created_at"`
}

// ProfileTrust is the single-row aggregate counter (spec §4.3, §4.6).
type ProfileTrust struct {
	ID                 int       `db:"id"`
	TotalDocuments      int       `db:"total_documents"`
	DocumentsVerified   int       `db:"documents_verified"`
	DocumentsCorrected  int       `db:"documents_corrected"`
	ExtractionAccuracy  float64   `db:"extraction_accuracy"`
	LastUpdated         time.Time `db:"last_updated"`
}
