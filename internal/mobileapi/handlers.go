// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mobileapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coheara/engine/internal/coherence"
	"github.com/coheara/engine/internal/mobileapi/middleware"
	"github.com/coheara/engine/internal/mobileapi/wsticket"
	"github.com/coheara/engine/internal/pairing"
	"github.com/coheara/engine/internal/profilestore"
	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
	"github.com/coheara/engine/pkg/cherr"
)

// healthHandler implements GET /health (spec §6): a plain liveness check
// that also reports whether a profile is currently unlocked, so the
// desktop companion and the phone can distinguish "server down" from
// "server up, no profile unlocked yet".
func healthHandler(profileActive func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := profileActive != nil && profileActive()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "profile_active": active})
	}
}

type pairRequest struct {
	Token          string `json:"token" binding:"required"`
	PhonePublicKey []byte `json:"phone_public_key" binding:"required"`
	DeviceName     string `json:"device_name"`
	DeviceModel    string `json:"device_model"`
}

// pairHandler implements spec §4.9 step 2: the phone's half of the
// pairing handshake. The handler body blocks inside RequestPairing for
// up to 60 seconds awaiting desktop approval.
func pairHandler(reg *pairing.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed pairing request"))
			return
		}
		result, err := reg.RequestPairing(req.Token, req.PhonePublicKey, req.DeviceName, req.DeviceModel)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_token":       result.SessionToken,
			"cache_key_encrypted": result.CacheKeyEncrypted,
			"profile_name":        result.ProfileName,
		})
	}
}

// wsTicketHandler mints the 30-second opaque ticket the already-
// authenticated device presents to upgrade to the notification socket.
func wsTicketHandler(minter *wsticket.Minter) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			middleware.Fail(c, cherr.New(cherr.AuthRequired, "no device identity on request"))
			return
		}
		ticket, err := minter.Mint(info.DeviceID)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticket": ticket, "expires_in": int(wsticket.TTL.Seconds())})
	}
}

// listCriticalAlertsHandler implements GET /alerts/critical (spec §6):
// the dashboard's highest-priority feed, always filtered to critical
// severity regardless of query parameters.
func listCriticalAlertsHandler(alerts *store.AlertRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := alerts.ListActive("critical")
		if err != nil {
			middleware.Fail(c, cherr.Wrap(cherr.Database, "list critical alerts", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": found})
	}
}

// askDismissHandler implements the first step of the two-step dismissal
// flow for critical alerts: validate without writing anything.
func askDismissHandler(svc *coherence.DismissalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		alert, err := svc.AskConfirmation(c.Param("id"))
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

type dismissRequest struct {
	Reason      string `json:"reason"`
	DismissedBy string `json:"dismissed_by"`
}

func confirmDismissHandler(svc *coherence.DismissalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dismissRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed dismissal request"))
			return
		}
		info := middleware.GetAuthInfo(c)
		dismissedBy := req.DismissedBy
		if dismissedBy == "" && info != nil {
			dismissedBy = info.DeviceName
		}
		if err := svc.ConfirmDismissal(c.Request.Context(), c.Param("id"), req.Reason, dismissedBy); err != nil {
			middleware.Fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type dismissNonCriticalRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Reason      string `json:"reason"`
	DismissedBy string `json:"dismissed_by"`
}

func dismissHandler(svc *coherence.DismissalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dismissNonCriticalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed dismissal request"))
			return
		}
		info := middleware.GetAuthInfo(c)
		dismissedBy := req.DismissedBy
		if dismissedBy == "" && info != nil {
			dismissedBy = info.DeviceName
		}
		kind := coherence.AlertKind(req.Kind)
		if err := svc.Dismiss(c.Request.Context(), c.Param("id"), kind, req.Reason, dismissedBy); err != nil {
			middleware.Fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func scanHandler(checker *coherence.ConsistencyChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		findings, err := checker.Scan()
		if err != nil {
			middleware.Fail(c, cherr.Wrap(cherr.Database, "consistency scan", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"findings": findings})
	}
}

func repairHandler(checker *coherence.ConsistencyChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		repaired, err := checker.Repair()
		if err != nil {
			middleware.Fail(c, cherr.Wrap(cherr.Database, "consistency repair", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"repaired": repaired})
	}
}

func listAppointmentsHandler(appts *store.AppointmentRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := appts.ListUpcoming()
		if err != nil {
			middleware.Fail(c, cherr.Wrap(cherr.Database, "list appointments", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"appointments": found})
	}
}

// appointmentPrepHandler serves the prep brief attached to one
// appointment (spec §6 GET /appointments/:id/prep).
func appointmentPrepHandler(appts *store.AppointmentRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		appt, err := appts.Get(c.Param("id"))
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"appointment_id": appt.ID, "prep_notes": appt.PrepNotes})
	}
}

// syncHandler implements POST /api/sync (spec §4.11): a 204 when every
// counter already matches and there is nothing to commit, otherwise the
// combined payload for every stale group.
func syncHandler(engine *syncengine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncengine.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed sync request"))
			return
		}
		resp, err := engine.Sync(req)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		if resp == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// resetSyncHandler implements reset_sync_versions: every paired device
// re-syncs its full view on its next request.
func resetSyncHandler(engine *syncengine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.Reset(); err != nil {
			middleware.Fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type chatSendRequest struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body" binding:"required"`
}

// chatSendHandler implements POST /chat/send (spec §6): stores the
// patient's message, no streaming reply — an empty conversation_id
// starts a new conversation.
func chatSendHandler(conversations *store.ConversationRepo, messages *store.ChatMessageRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatSendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed chat message"))
			return
		}

		now := time.Now().UTC()
		conversationID := req.ConversationID
		if conversationID == "" {
			conversationID = uuid.New().String()
			if err := conversations.Create(store.Conversation{
				ID: conversationID, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				middleware.Fail(c, err)
				return
			}
		} else if _, err := conversations.Get(conversationID); err != nil {
			middleware.Fail(c, err)
			return
		}

		msg := store.ChatMessage{
			ID: uuid.New().String(), ConversationID: conversationID,
			Sender: store.SenderPatient, Body: req.Body, CreatedAt: now,
		}
		if err := messages.Create(msg); err != nil {
			middleware.Fail(c, err)
			return
		}
		if err := conversations.Touch(conversationID, now); err != nil {
			middleware.Fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "message": msg})
	}
}

// listConversationsHandler implements GET /chat/conversations.
func listConversationsHandler(conversations *store.ConversationRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := conversations.List()
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": found})
	}
}

// getConversationHandler implements GET /chat/conversations/:id: one
// conversation plus its full message history, oldest first.
func getConversationHandler(conversations *store.ConversationRepo, messages *store.ChatMessageRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := conversations.Get(c.Param("id"))
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		msgs, err := messages.ListByConversation(conv.ID)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": msgs})
	}
}

// homeHandler implements GET /home (spec §6): the dashboard bundle —
// active critical alerts, upcoming appointments, active medications,
// recent timeline events, and the profile trust aggregate, gathered in
// one round trip instead of five.
func homeHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := deps.Alerts.ListActive("critical")
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		appts, err := deps.Appointments.ListUpcoming()
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		meds, err := deps.Medications.ListActive()
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		timeline, err := deps.Documents.ListRecent(homeTimelineLimit)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		trust, err := deps.Trust.Get()
		if err != nil {
			middleware.Fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts":       alerts,
			"appointments": appts,
			"medications":  meds,
			"timeline":     timeline,
			"profile":      trust,
		})
	}
}

// homeTimelineLimit bounds the timeline slice returned by the dashboard
// bundle; the full history is still reachable via /timeline/recent with
// its own paging.
const homeTimelineLimit = 10

type journalRecordRequest struct {
	Description string     `json:"description" binding:"required"`
	OnsetAt     *time.Time `json:"onset_at"`
}

// journalRecordHandler implements POST /journal/record (spec §6):
// a patient-authored symptom, stored with no source document.
func journalRecordHandler(symptoms *store.SymptomRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req journalRecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed journal entry"))
			return
		}
		entry := store.Symptom{
			ID: uuid.New().String(), DocumentID: nil, Description: req.Description,
			OnsetAt: req.OnsetAt, Confidence: 1.0, CreatedAt: time.Now().UTC(),
		}
		if err := symptoms.Create(entry); err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// journalHistoryHandler implements GET /journal/history (spec §6),
// optionally bounded by ?from= and ?to= RFC-3339 timestamps.
func journalHistoryHandler(symptoms *store.SymptomRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := parseOptionalTime(c.Query("from"))
		if err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed from timestamp"))
			return
		}
		to, err := parseOptionalTime(c.Query("to"))
		if err != nil {
			middleware.Fail(c, cherr.New(cherr.BadRequest, "malformed to timestamp"))
			return
		}
		found, err := symptoms.ListJournal(from, to)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"symptoms": found})
	}
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// listMedicationsHandler implements GET /medications.
func listMedicationsHandler(meds *store.MedicationRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := meds.ListActive()
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"medications": found})
	}
}

// getMedicationHandler implements GET /medications/:id.
func getMedicationHandler(meds *store.MedicationRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		med, err := meds.Get(c.Param("id"))
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, med)
	}
}

// timelineRecentHandler implements GET /timeline/recent.
func timelineRecentHandler(docs *store.DocumentRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := docs.ListRecent(timelineRecentLimit)
		if err != nil {
			middleware.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"timeline": found})
	}
}

const timelineRecentLimit = 50

// accessibleProfileView pairs an accessible profile's access level with
// its display name, resolved from the unencrypted profile registry.
type accessibleProfileView struct {
	ProfileID   string            `json:"profile_id"`
	Name        string            `json:"name"`
	AccessLevel store.AccessLevel `json:"access_level"`
}

// accessibleProfilesHandler implements GET /profiles/accessible
// (spec §6): every profile the calling device holds any grant on.
func accessibleProfilesHandler(app *store.AppRepo, profiles *profilestore.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			middleware.Fail(c, cherr.New(cherr.AuthRequired, "no device identity on request"))
			return
		}
		grants, err := app.ListAccessibleProfiles(info.DeviceID)
		if err != nil {
			middleware.Fail(c, err)
			return
		}

		names := make(map[string]string, len(grants))
		for _, meta := range profiles.List() {
			names[meta.ID] = meta.Name
		}

		out := make([]accessibleProfileView, 0, len(grants))
		for _, g := range grants {
			out = append(out, accessibleProfileView{ProfileID: g.ProfileID, Name: names[g.ProfileID], AccessLevel: g.AccessLevel})
		}
		c.JSON(http.StatusOK, gin.H{"profiles": out})
	}
}
