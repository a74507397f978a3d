// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coherence

import (
	"fmt"

	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
)

// Finding is one issue surfaced by a Scan, before repair.
type Finding struct {
	Category    string
	Severity    string
	Description string
	DocumentID  *string
}

const (
	categoryStuckPipeline  = "stuck_pipeline"
	categoryMissingChunks  = "missing_chunks"
	categoryOrphanedChunks = "orphaned_chunks"
	categoryTrustDrift     = "trust_drift"
)

// ConsistencyChecker runs the on-demand scan spec §4.6/§4.7 describes.
// The original vector-store "chunks" concept doesn't apply here — this
// store is relational, and full-text retrieval runs off the search_index
// shadow table (spec §4.3) — so missing_chunks/orphaned_chunks are
// reinterpreted against that table: a confirmed document with no derived
// entities and no search_index row is "missing", and a search_index row
// with no backing document is "orphaned".
type ConsistencyChecker struct {
	docs        *store.DocumentRepo
	medications *store.MedicationRepo
	labs        *store.LabResultRepo
	diagnoses   *store.DiagnosisRepo
	allergies   *store.AllergyRepo
	search      *store.SearchRepo
	trust       *store.TrustRepo
	versions    *syncengine.VersionRepo
}

func NewConsistencyChecker(
	docs *store.DocumentRepo,
	medications *store.MedicationRepo,
	labs *store.LabResultRepo,
	diagnoses *store.DiagnosisRepo,
	allergies *store.AllergyRepo,
	search *store.SearchRepo,
	trust *store.TrustRepo,
	versions *syncengine.VersionRepo,
) *ConsistencyChecker {
	return &ConsistencyChecker{
		docs: docs, medications: medications, labs: labs,
		diagnoses: diagnoses, allergies: allergies, search: search, trust: trust, versions: versions,
	}
}

// Scan reports every finding without changing anything.
func (c *ConsistencyChecker) Scan() ([]Finding, error) {
	var findings []Finding

	stuck, err := c.scanStuckPipeline()
	if err != nil {
		return nil, err
	}
	findings = append(findings, stuck...)

	missing, err := c.scanMissingChunks()
	if err != nil {
		return nil, err
	}
	findings = append(findings, missing...)

	orphaned, err := c.scanOrphanedChunks()
	if err != nil {
		return nil, err
	}
	findings = append(findings, orphaned...)

	drift, err := c.scanTrustDrift()
	if err != nil {
		return nil, err
	}
	findings = append(findings, drift...)

	return findings, nil
}

func (c *ConsistencyChecker) scanStuckPipeline() ([]Finding, error) {
	var findings []Finding
	for _, status := range []store.DocumentStatus{store.StatusExtracting, store.StatusStructuring} {
		docs, err := c.docs.ListByStatus(status)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			id := d.ID
			findings = append(findings, Finding{
				Category:    categoryStuckPipeline,
				Severity:    "high",
				Description: fmt.Sprintf("document %s has been stuck in %s", d.ID, status),
				DocumentID:  &id,
			})
		}
	}
	return findings, nil
}

func (c *ConsistencyChecker) scanMissingChunks() ([]Finding, error) {
	confirmed, err := c.docs.ListByStatus(store.StatusConfirmed)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, d := range confirmed {
		hasEntry, err := c.search.HasEntry(d.ID)
		if err != nil {
			return nil, err
		}
		if hasEntry {
			continue
		}
		hasEntities, err := c.hasAnyDerivedEntity(d.ID)
		if err != nil {
			return nil, err
		}
		if hasEntities {
			continue
		}
		id := d.ID
		findings = append(findings, Finding{
			Category:    categoryMissingChunks,
			Severity:    "medium",
			Description: fmt.Sprintf("confirmed document %s has no derived entities and no search index entry", d.ID),
			DocumentID:  &id,
		})
	}
	return findings, nil
}

func (c *ConsistencyChecker) hasAnyDerivedEntity(documentID string) (bool, error) {
	meds, err := c.medications.ListByDocument(documentID)
	if err != nil {
		return false, err
	}
	if len(meds) > 0 {
		return true, nil
	}
	labs, err := c.labs.ListByDocument(documentID)
	if err != nil {
		return false, err
	}
	if len(labs) > 0 {
		return true, nil
	}
	diagnoses, err := c.diagnoses.ListByDocument(documentID)
	if err != nil {
		return false, err
	}
	if len(diagnoses) > 0 {
		return true, nil
	}
	allergies, err := c.allergies.ListByDocument(documentID)
	if err != nil {
		return false, err
	}
	return len(allergies) > 0, nil
}

func (c *ConsistencyChecker) scanOrphanedChunks() ([]Finding, error) {
	orphaned, err := c.search.ListOrphaned()
	if err != nil {
		return nil, err
	}
	findings := make([]Finding, 0, len(orphaned))
	for _, id := range orphaned {
		docID := id
		findings = append(findings, Finding{
			Category:    categoryOrphanedChunks,
			Severity:    "low",
			Description: fmt.Sprintf("search index entry %s has no backing document", id),
			DocumentID:  &docID,
		})
	}
	return findings, nil
}

func (c *ConsistencyChecker) scanTrustDrift() ([]Finding, error) {
	trust, err := c.trust.Get()
	if err != nil {
		return nil, err
	}
	all, err := c.docs.List()
	if err != nil {
		return nil, err
	}

	var actualTotal, actualVerified int
	for _, d := range all {
		actualTotal++
		if d.Status == store.StatusConfirmed {
			actualVerified++
		}
	}

	if trust.TotalDocuments == actualTotal && trust.DocumentsVerified == actualVerified {
		return nil, nil
	}
	return []Finding{{
		Category: categoryTrustDrift,
		Severity: "medium",
		Description: fmt.Sprintf(
			"profile_trust reports %d documents (%d verified) but the store has %d (%d verified)",
			trust.TotalDocuments, trust.DocumentsVerified, actualTotal, actualVerified),
	}}, nil
}

// Repair fixes every finding Scan would report and returns how many rows
// it touched. Idempotent: running it again against a clean store returns
// zero.
func (c *ConsistencyChecker) Repair() (int, error) {
	repaired := 0

	for _, status := range []store.DocumentStatus{store.StatusExtracting, store.StatusStructuring} {
		docs, err := c.docs.ListByStatus(status)
		if err != nil {
			return repaired, err
		}
		for _, d := range docs {
			if err := c.docs.SetStatus(d.ID, store.StatusFailed); err != nil {
				return repaired, err
			}
			repaired++
		}
	}

	orphaned, err := c.search.ListOrphaned()
	if err != nil {
		return repaired, err
	}
	for _, id := range orphaned {
		if err := c.search.DeleteForDocument(id); err != nil {
			return repaired, err
		}
		repaired++
	}

	driftFindings, err := c.scanTrustDrift()
	if err != nil {
		return repaired, err
	}
	if len(driftFindings) > 0 {
		if err := c.trust.Recompute(); err != nil {
			return repaired, err
		}
		if c.versions != nil {
			_ = c.versions.Bump(syncengine.GroupProfile)
		}
		repaired++
	}

	return repaired, nil
}
