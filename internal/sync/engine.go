// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/coheara/engine/internal/store"
)

// JournalEntry is one inbound mutation a device wants applied as part of
// a sync round-trip, persisted as a patient-authored store.Symptom row
// (document_id nil, distinguishing it from a document-derived symptom).
type JournalEntry struct {
	Description string     `json:"description"`
	OnsetAt     *time.Time `json:"onset_at"`
}

// Request is the POST /api/sync body.
type Request struct {
	Versions       map[Group]int64 `json:"versions"`
	JournalEntries []JournalEntry  `json:"journal_entries"`
}

// Response is the combined payload returned for every stale group, plus
// the server's current version of all six counters.
type Response struct {
	Versions     map[Group]int64        `json:"versions"`
	Medications  []store.Medication     `json:"medications,omitempty"`
	Labs         []store.LabResult      `json:"labs,omitempty"`
	Timeline     []store.Document       `json:"timeline,omitempty"`
	Alerts       []store.CoherenceAlert `json:"alerts,omitempty"`
	Appointments []store.Appointment    `json:"appointments,omitempty"`
	Profile      *store.ProfileTrust    `json:"profile,omitempty"`
}

// Engine implements the POST /api/sync handshake (spec §4.11).
type Engine struct {
	versions *VersionRepo
	meds     *store.MedicationRepo
	labs     *store.LabResultRepo
	docs     *store.DocumentRepo
	alerts   *store.AlertRepo
	appts    *store.AppointmentRepo
	trust    *store.TrustRepo
	symptoms *store.SymptomRepo
}

func NewEngine(
	versions *VersionRepo,
	meds *store.MedicationRepo,
	labs *store.LabResultRepo,
	docs *store.DocumentRepo,
	alerts *store.AlertRepo,
	appts *store.AppointmentRepo,
	trust *store.TrustRepo,
	symptoms *store.SymptomRepo,
) *Engine {
	return &Engine{versions: versions, meds: meds, labs: labs, docs: docs, alerts: alerts, appts: appts, trust: trust, symptoms: symptoms}
}

// Sync runs the delta handshake. A nil response with no error means every
// counter matched and there was nothing to commit — the caller should
// answer 204 No Content.
func (e *Engine) Sync(req Request) (*Response, error) {
	for _, entry := range req.JournalEntries {
		if err := e.symptoms.Create(store.Symptom{
			ID: uuid.New().String(), DocumentID: nil, Description: entry.Description,
			OnsetAt: entry.OnsetAt, Confidence: 1.0, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		if err := e.versions.Bump(GroupTimeline); err != nil {
			return nil, err
		}
	}

	current, err := e.versions.GetAll()
	if err != nil {
		return nil, err
	}

	stale := map[Group]bool{}
	for _, g := range Groups {
		if req.Versions[g] < current[g] {
			stale[g] = true
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	resp := &Response{Versions: current}

	if stale[GroupMedications] {
		meds, err := e.meds.ListActive()
		if err != nil {
			return nil, err
		}
		resp.Medications = meds
	}
	if stale[GroupLabs] {
		labs, err := e.labs.ListCritical()
		if err != nil {
			return nil, err
		}
		resp.Labs = labs
	}
	if stale[GroupTimeline] {
		docs, err := e.docs.List()
		if err != nil {
			return nil, err
		}
		resp.Timeline = docs
	}
	if stale[GroupAlerts] {
		alerts, err := e.alerts.ListActive("")
		if err != nil {
			return nil, err
		}
		resp.Alerts = alerts
	}
	if stale[GroupAppointments] {
		appts, err := e.appts.ListUpcoming()
		if err != nil {
			return nil, err
		}
		resp.Appointments = appts
	}
	if stale[GroupProfile] {
		trust, err := e.trust.Get()
		if err != nil {
			return nil, err
		}
		resp.Profile = trust
	}

	return resp, nil
}

// Reset implements reset_sync_versions.
func (e *Engine) Reset() error {
	return e.versions.Reset()
}
