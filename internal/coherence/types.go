// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coherence implements the safety-net that runs over structured
// entities once they land in the relational store: critical-lab
// surfacing, dose plausibility, the two-step dismissal workflow for
// critical alerts, and the on-demand consistency checker (spec §4.6,
// §4.7).
package coherence

// AlertKind is the closed set of coherence_alerts categories (spec §3).
type AlertKind string

const (
	KindConflict  AlertKind = "conflict"
	KindGap       AlertKind = "gap"
	KindDrift     AlertKind = "drift"
	KindAmbiguity AlertKind = "ambiguity"
	KindDuplicate AlertKind = "duplicate"
	KindAllergy   AlertKind = "allergy"
	KindDose      AlertKind = "dose"
	KindCritical  AlertKind = "critical_lab"
	KindTemporal  AlertKind = "temporal"
)

// Severity distinguishes alerts that require the two-step dismissal flow
// from every other kind, which requires only a non-empty reason.
type Severity string

const (
	SeverityStandard Severity = "standard"
	SeverityCritical Severity = "critical"
)
