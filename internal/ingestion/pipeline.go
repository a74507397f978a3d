// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/coheara/engine/internal/coherence"
	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
	"github.com/coheara/engine/pkg/cherr"
	"github.com/coheara/engine/pkg/extensions"
	"github.com/coheara/engine/pkg/logging"
)

// MarkdownWriter persists a document's encrypted structured markdown and
// returns the path recorded on the document row. internal/profilestore's
// SaveEncryptedMarkdown implements this.
type MarkdownWriter interface {
	Write(documentID, text string) (path string, err error)
}

// Config bundles the ingestion-tunable thresholds the pipeline needs,
// mirroring config.Ingestion so the package does not import config
// directly (keeping its dependency graph one-directional).
type Config struct {
	NearDuplicateHammingThreshold int
	OCRConfidenceFloor            float64
	StructuringConfidenceFloor    float64
}

// Pipeline wires the five ingestion stages to their storage and model
// dependencies for a single unlocked profile.
type Pipeline struct {
	docs          *store.DocumentRepo
	meds          *store.MedicationRepo
	labs          *store.LabResultRepo
	diagnoses     *store.DiagnosisRepo
	allergies     *store.AllergyRepo
	professionals *store.ProfessionalRepo
	alerts        *store.AlertRepo
	trust         *store.TrustRepo
	search        *store.SearchRepo
	appointments  *store.AppointmentRepo
	procedures    *store.ProcedureRepo
	referrals     *store.ReferralRepo
	instructions  *store.InstructionRepo
	symptoms      *store.SymptomRepo
	versions      *syncengine.VersionRepo
	audit         extensions.AuditLogger

	extractor   TextExtractor
	structuring StructuringModel
	markdown    MarkdownWriter

	cfg Config
	log *logging.Logger
}

// NewPipeline constructs a Pipeline against one profile's opened store.
func NewPipeline(db *store.DB, extractor TextExtractor, structuring StructuringModel, markdown MarkdownWriter, audit extensions.AuditLogger, cfg Config) *Pipeline {
	return &Pipeline{
		docs:          store.NewDocumentRepo(db),
		meds:          store.NewMedicationRepo(db),
		labs:          store.NewLabResultRepo(db),
		diagnoses:     store.NewDiagnosisRepo(db),
		allergies:     store.NewAllergyRepo(db),
		professionals: store.NewProfessionalRepo(db),
		alerts:        store.NewAlertRepo(db),
		trust:         store.NewTrustRepo(db),
		search:        store.NewSearchRepo(db),
		appointments:  store.NewAppointmentRepo(db),
		procedures:    store.NewProcedureRepo(db),
		referrals:     store.NewReferralRepo(db),
		instructions:  store.NewInstructionRepo(db),
		symptoms:      store.NewSymptomRepo(db),
		versions:      syncengine.NewVersionRepo(db.DB),
		audit:         audit,
		extractor:     extractor,
		structuring:   structuring,
		markdown:      markdown,
		cfg:           cfg,
		log:           logging.Default(),
	}
}

// Run executes all five stages on a staged file's bytes, returning the
// terminal status. Re-importing a file already present by exact content
// hash is a no-op that returns the existing document's id (spec §4.5
// idempotency). Failure at any stage marks the document failed and
// returns the error; what was staged is left for retry.
func (p *Pipeline) Run(ctx context.Context, data []byte, sourcePath string) (*Result, error) {
	outcome, err := p.importStage(data, sourcePath)
	if err != nil {
		return nil, err
	}
	if outcome.Deduplicate {
		return &Result{DocumentID: outcome.Document.ID, Status: outcome.Document.Status, Dedup: true}, nil
	}
	doc := outcome.Document

	pages, err := p.extractStage(doc, data)
	if err != nil {
		p.fail(doc.ID)
		return nil, err
	}

	entities, err := p.structureStage(ctx, doc, pages)
	if err != nil {
		p.fail(doc.ID)
		return nil, err
	}

	if err := p.storeStage(doc, pages, entities); err != nil {
		p.fail(doc.ID)
		return nil, err
	}

	alertCount, err := p.coherencePass(doc)
	if err != nil {
		p.log.Warn("coherence pass failed", "document_id", doc.ID, "error", err)
	}

	final, err := p.docs.Get(doc.ID)
	if err != nil {
		return nil, err
	}
	return &Result{DocumentID: doc.ID, Status: final.Status, NearDup: outcome.NearDup, Alerts: alertCount}, nil
}

func (p *Pipeline) fail(documentID string) {
	if err := p.docs.SetStatus(documentID, store.StatusFailed); err != nil {
		p.log.Warn("failed to mark document failed", "document_id", documentID, "error", err)
	}
	p.bump(syncengine.GroupTimeline)
}

// bump advances a sync counter. A failure here never aborts the write it
// follows — a stale counter only costs a device an extra full resync.
func (p *Pipeline) bump(g syncengine.Group) {
	if err := p.versions.Bump(g); err != nil {
		p.log.Warn("sync counter bump failed", "group", g, "error", err)
	}
}

// importStage classifies the file, computes its hash(es), and either
// returns an existing document (exact dedup) or creates a new one,
// possibly flagged as a probable near-duplicate.
func (p *Pipeline) importStage(data []byte, sourcePath string) (*ImportOutcome, error) {
	format := Classify(data)
	if format == FormatUnsupported {
		return nil, cherr.New(cherr.UnsupportedFormat, "unrecognized file format")
	}

	contentHash := sha256Hex(data)
	if existing, err := p.docs.FindByContentHash(contentHash); err != nil {
		return nil, err
	} else if existing != nil {
		return &ImportOutcome{Document: existing, Deduplicate: true}, nil
	}

	var perceptualHash string
	nearDup := false
	if format == FormatImage {
		hash, err := PerceptualHash(data)
		if err == nil {
			perceptualHash = hash
			existingHashes, err := p.docs.FindPerceptualHashes()
			if err == nil {
				for _, other := range existingHashes {
					dist, err := HammingDistance256(hash, other)
					if err == nil && dist <= p.cfg.NearDuplicateHammingThreshold {
						nearDup = true
						break
					}
				}
			}
		}
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID: uuid.New().String(), Format: storeFormat(format), ContentHash: contentHash,
		PerceptualHash: perceptualHash, Status: store.StatusImported, SourcePath: sourcePath,
		ImportedAt: now, UpdatedAt: now,
	}
	if err := p.docs.Create(doc); err != nil {
		return nil, err
	}
	p.bump(syncengine.GroupTimeline)
	return &ImportOutcome{Document: &doc, NearDup: nearDup}, nil
}

func (p *Pipeline) extractStage(doc *store.Document, data []byte) ([]ExtractedPage, error) {
	if err := p.docs.SetStatus(doc.ID, store.StatusExtracting); err != nil {
		return nil, err
	}

	switch storeFormat(Classify(data)) {
	case store.FormatDigitalPDF:
		return ExtractDigitalPDF(data)
	case store.FormatPlainText:
		text := SanitizeText(string(data))
		return []ExtractedPage{{Text: text, Confidence: 1.0, Language: DetectLanguage(text)}}, nil
	default: // Image, ScannedPDF: rasterization is a downstream rendering
		// concern this package does not own; the whole file is handed to
		// the OCR backend as a single page.
		result, err := p.extractor.Recognize(data, DetectLanguage(""))
		if err != nil {
			return nil, cherr.Wrap(cherr.Internal, "ocr extraction failed", err)
		}
		return []ExtractedPage{{
			Text: SanitizeText(result.Text), Confidence: result.PageConfidence,
			Language: DetectLanguage(result.Text),
		}}, nil
	}
}

func (p *Pipeline) structureStage(ctx context.Context, doc *store.Document, pages []ExtractedPage) ([]StructuredEntity, error) {
	if err := p.docs.SetStatus(doc.ID, store.StatusStructuring); err != nil {
		return nil, err
	}

	var combined string
	for i, page := range pages {
		if i > 0 {
			combined += "\n\n"
		}
		combined += page.Text
	}
	if combined == "" {
		return nil, nil
	}
	return p.structuring.Structure(ctx, combined)
}

// storeStage materializes extracted entities into their tables, writes
// encrypted markdown, indexes the document for search, and decides the
// terminal status (pending_review vs confirmed) from spec §4.5/§9's
// confidence-propagation rule.
func (p *Pipeline) storeStage(doc *store.Document, pages []ExtractedPage, entities []StructuredEntity) error {
	entityConfidences := make([]float64, 0, len(entities))
	var markdown string
	dedupAlerts := 0

	for _, e := range entities {
		entityConfidences = append(entityConfidences, e.Confidence)
		if err := p.storeEntity(doc, e, &dedupAlerts); err != nil {
			return err
		}
		markdown += renderEntityMarkdown(e) + "\n"
	}

	if p.markdown != nil && markdown != "" {
		path, err := p.markdown.Write(doc.ID, markdown)
		if err != nil {
			return cherr.Wrap(cherr.Internal, "write encrypted markdown", err)
		}
		if err := p.docs.SetMarkdownPath(doc.ID, path); err != nil {
			return err
		}
	}

	var professionalName string
	for _, e := range entities {
		if e.Kind == "professional" {
			professionalName = fieldString(e.Fields, "name")
		}
	}
	if err := p.search.Index(doc.ID, doc.Title, professionalName, markdown); err != nil {
		p.log.Warn("search indexing failed", "document_id", doc.ID, "error", err)
	}

	pageConfidences := make([]float64, 0, len(pages))
	for _, page := range pages {
		pageConfidences = append(pageConfidences, page.Confidence)
	}
	verified := ComputeVerified(pageConfidences, entityConfidences, p.cfg.OCRConfidenceFloor, p.cfg.StructuringConfidenceFloor)
	if err := p.docs.SetVerified(doc.ID, verified); err != nil {
		return err
	}
	status := store.StatusPendingReview
	if verified {
		status = store.StatusConfirmed
	}
	if err := p.docs.SetStatus(doc.ID, status); err != nil {
		return err
	}
	p.bump(syncengine.GroupTimeline)
	return nil
}

func (p *Pipeline) storeEntity(doc *store.Document, e StructuredEntity, dedupAlerts *int) error {
	now := time.Now().UTC()
	var professionalID *string
	if name := fieldString(e.Fields, "professional_name"); name != "" {
		prof, err := p.professionals.ResolveOrCreate(store.Professional{ID: uuid.New().String(), Name: name, CreatedAt: now})
		if err != nil {
			return err
		}
		professionalID = &prof.ID
	}

	switch e.Kind {
	case "medication":
		generic := fieldString(e.Fields, "generic_name")
		startedAt := fieldTime(e.Fields, "started_at")
		asOf := now
		if startedAt != nil {
			asOf = *startedAt
		}
		if dup, err := p.meds.FindActiveDuplicate(generic, asOf, MedicationDedupWindowDays); err != nil {
			return err
		} else if dup != nil {
			*dedupAlerts++
			if err := p.alerts.Create(store.CoherenceAlert{
				ID: uuid.New().String(), Category: "duplicate", Severity: "low",
				DocumentID: &doc.ID, Detail: "duplicate medication: " + generic, CreatedAt: now,
			}); err != nil {
				return err
			}
			p.bump(syncengine.GroupAlerts)
			return nil
		}
		if err := p.meds.Create(store.Medication{
			ID: uuid.New().String(), DocumentID: doc.ID, GenericName: generic,
			BrandName: fieldString(e.Fields, "brand_name"), DoseValue: fieldFloat(e.Fields, "dose_value"),
			DoseUnit: fieldString(e.Fields, "dose_unit"), Status: store.MedicationActive,
			ProfessionalID: professionalID, Confidence: e.Confidence, StartedAt: startedAt, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupMedications)
		return nil
	case "lab_result":
		if err := p.labs.Create(store.LabResult{
			ID: uuid.New().String(), DocumentID: doc.ID, TestName: fieldString(e.Fields, "test_name"),
			Value: fieldFloat(e.Fields, "value"), Unit: fieldString(e.Fields, "unit"),
			AbnormalFlag: store.AbnormalFlag(fieldString(e.Fields, "abnormal_flag")),
			CollectedAt:  valueOrNow(fieldTime(e.Fields, "collected_at"), now),
			Confidence:   e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupLabs)
		return nil
	case "diagnosis":
		if err := p.diagnoses.Create(store.Diagnosis{
			ID: uuid.New().String(), DocumentID: doc.ID, Description: fieldString(e.Fields, "description"),
			Status: "active", DiagnosedAt: fieldTime(e.Fields, "diagnosed_at"), Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	case "allergy":
		if err := p.allergies.Create(store.Allergy{
			ID: uuid.New().String(), DocumentID: doc.ID, Substance: fieldString(e.Fields, "substance"),
			Reaction: fieldString(e.Fields, "reaction"), Severity: fieldString(e.Fields, "severity"),
			Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	case "appointment":
		scheduledAt := valueOrNow(fieldTime(e.Fields, "scheduled_at"), now)
		docID := doc.ID
		if err := p.appointments.Create(store.Appointment{
			ID: uuid.New().String(), DocumentID: &docID, ProfessionalID: professionalID,
			ScheduledAt: scheduledAt, Reason: fieldString(e.Fields, "reason"),
			Location: fieldString(e.Fields, "location"), CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupAppointments)
		return nil
	case "procedure":
		if err := p.procedures.Create(store.Procedure{
			ID: uuid.New().String(), DocumentID: doc.ID, Description: fieldString(e.Fields, "description"),
			PerformedAt: fieldTime(e.Fields, "performed_at"), ProfessionalID: professionalID,
			Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	case "referral":
		if err := p.referrals.Create(store.Referral{
			ID: uuid.New().String(), DocumentID: doc.ID, ToSpecialty: fieldString(e.Fields, "to_specialty"),
			Reason: fieldString(e.Fields, "reason"), ProfessionalID: professionalID,
			Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	case "instruction":
		if err := p.instructions.Create(store.Instruction{
			ID: uuid.New().String(), DocumentID: doc.ID, Text: fieldString(e.Fields, "text"),
			Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	case "symptom":
		docID := doc.ID
		if err := p.symptoms.Create(store.Symptom{
			ID: uuid.New().String(), DocumentID: &docID, Description: fieldString(e.Fields, "description"),
			OnsetAt: fieldTime(e.Fields, "onset_at"), Confidence: e.Confidence, CreatedAt: now,
		}); err != nil {
			return err
		}
		p.bump(syncengine.GroupTimeline)
		return nil
	default:
		return nil
	}
}

// coherencePass runs the critical-lab scanner plus the allergy/dose
// checks over the rows just committed by storeStage (spec §4.5 step 5,
// §4.6).
func (p *Pipeline) coherencePass(doc *store.Document) (int, error) {
	count := 0
	now := time.Now().UTC()

	labs, err := p.labs.ListByDocument(doc.ID)
	if err != nil {
		return count, err
	}
	for _, lab := range labs {
		if lab.AbnormalFlag != store.FlagCriticalLow && lab.AbnormalFlag != store.FlagCriticalHigh {
			continue
		}
		if err := p.alerts.Create(store.CoherenceAlert{
			ID: uuid.New().String(), Category: "critical_lab", Severity: "critical",
			DocumentID: &doc.ID, Detail: criticalLabDetail(lab), CreatedAt: now,
		}); err != nil {
			return count, err
		}
		p.bump(syncengine.GroupAlerts)
		count++
	}

	meds, err := p.meds.ListByDocument(doc.ID)
	if err != nil {
		return count, err
	}
	if len(meds) == 0 {
		return count, nil
	}

	allergies, err := p.allergies.List()
	if err != nil {
		return count, err
	}
	substances := make([]string, 0, len(allergies))
	for _, a := range allergies {
		substances = append(substances, a.Substance)
	}

	for _, med := range meds {
		if substance, conflict := coherence.ConflictsWithAllergy(med.GenericName, substances); conflict {
			if err := p.alerts.Create(store.CoherenceAlert{
				ID: uuid.New().String(), Category: "allergy", Severity: "critical",
				DocumentID: &doc.ID,
				Detail:     med.GenericName + " conflicts with a recorded allergy to " + substance,
				CreatedAt:  now,
			}); err != nil {
				return count, err
			}
			p.bump(syncengine.GroupAlerts)
			count++
		}

		dose := coherence.CheckDose(med.GenericName, med.DoseValue, med.DoseUnit)
		if dose.Verdict == coherence.DosePlausible || dose.Verdict == coherence.DoseUnknownMedication {
			continue
		}
		if err := p.alerts.Create(store.CoherenceAlert{
			ID: uuid.New().String(), Category: "dose", Severity: "medium",
			DocumentID: &doc.ID, Detail: dose.Message, CreatedAt: now,
		}); err != nil {
			return count, err
		}
		p.bump(syncengine.GroupAlerts)
		count++
	}

	return count, nil
}

func storeFormat(f Format) store.DocumentFormat {
	switch f {
	case FormatImage:
		return store.FormatImage
	case FormatDigitalPDF:
		return store.FormatDigitalPDF
	case FormatScannedPDF:
		return store.FormatScannedPDF
	default:
		return store.FormatPlainText
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func valueOrNow(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}
