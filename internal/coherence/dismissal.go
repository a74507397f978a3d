// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coherence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
	"github.com/coheara/engine/pkg/cherr"
	"github.com/coheara/engine/pkg/extensions"
)

// DismissalService runs the dismiss operation described in spec §4.6: a
// state machine over a single alert for critical severities, a single
// call for everything else.
type DismissalService struct {
	alerts   *store.AlertRepo
	versions *syncengine.VersionRepo
	audit    extensions.AuditLogger
}

func NewDismissalService(alerts *store.AlertRepo, versions *syncengine.VersionRepo, audit extensions.AuditLogger) *DismissalService {
	return &DismissalService{alerts: alerts, versions: versions, audit: audit}
}

// AskConfirmation validates that the alert exists and is still critical.
// No write happens here; it exists purely so a caller can present a
// confirmation prompt before committing to ConfirmDismissal.
func (s *DismissalService) AskConfirmation(id string) (*store.CoherenceAlert, error) {
	alert, err := s.alerts.Get(id)
	if err != nil {
		return nil, err
	}
	if alert.Severity != string(SeverityCritical) {
		return nil, cherr.New(cherr.BadRequest, "alert is not critical severity; use Dismiss instead")
	}
	dismissed, err := s.alerts.IsDismissed(id)
	if err != nil {
		return nil, err
	}
	if dismissed {
		return nil, cherr.New(cherr.BadRequest, "alert already dismissed")
	}
	return alert, nil
}

// ConfirmDismissal is the second step for a critical alert: a non-empty
// reason is required, the alert is re-fetched to guard against it having
// been dismissed between AskConfirmation and this call, and the
// dismissal is recorded with alert_type "critical".
func (s *DismissalService) ConfirmDismissal(ctx context.Context, id, reason, dismissedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return cherr.New(cherr.BadRequest, "a reason is required to dismiss a critical alert")
	}
	if _, err := s.AskConfirmation(id); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.alerts.Dismiss(store.DismissedAlert{
		ID:          uuid.NewString(),
		AlertType:   string(SeverityCritical),
		EntityID:    id,
		Reason:      reason,
		DismissedBy: dismissedBy,
		DismissedAt: now,
	}); err != nil {
		return err
	}
	s.bumpAlerts()

	return s.audit.Log(ctx, extensions.AuditEvent{
		Timestamp: now,
		Action:    "dismiss_alert",
		Subject:   id,
		Metadata:  extensions.Metadata{"severity": string(SeverityCritical), "reason": reason},
	})
}

// bumpAlerts advances the alerts sync counter; a failure here never fails
// the dismissal it follows, it only costs a device an extra full resync.
func (s *DismissalService) bumpAlerts() {
	if s.versions == nil {
		return
	}
	_ = s.versions.Bump(syncengine.GroupAlerts)
}

// Dismiss handles every non-critical alert kind: one call, a non-empty
// reason is the only requirement.
func (s *DismissalService) Dismiss(ctx context.Context, id string, kind AlertKind, reason, dismissedBy string) error {
	if strings.TrimSpace(reason) == "" {
		return cherr.New(cherr.BadRequest, "a reason is required to dismiss an alert")
	}
	alert, err := s.alerts.Get(id)
	if err != nil {
		return err
	}
	if alert.Severity == string(SeverityCritical) {
		return cherr.New(cherr.BadRequest, "critical alerts require AskConfirmation then ConfirmDismissal")
	}

	now := time.Now().UTC()
	if err := s.alerts.Dismiss(store.DismissedAlert{
		ID:          uuid.NewString(),
		AlertType:   string(kind),
		EntityID:    id,
		Reason:      reason,
		DismissedBy: dismissedBy,
		DismissedAt: now,
	}); err != nil {
		return err
	}
	s.bumpAlerts()

	return s.audit.Log(ctx, extensions.AuditEvent{
		Timestamp: now,
		Action:    "dismiss_alert",
		Subject:   id,
		Metadata:  extensions.Metadata{"severity": string(SeverityStandard), "reason": reason},
	})
}
