// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mobileapi assembles the gin router, middleware chain, and
// WebSocket notification channel the paired mobile companion talks to
// (spec §4.9, §4.10, §6).
package mobileapi

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/coheara/engine/internal/coherence"
	"github.com/coheara/engine/internal/mobileapi/middleware"
	"github.com/coheara/engine/internal/mobileapi/noncecache"
	"github.com/coheara/engine/internal/mobileapi/ratelimit"
	"github.com/coheara/engine/internal/mobileapi/ws"
	"github.com/coheara/engine/internal/mobileapi/wsticket"
	"github.com/coheara/engine/internal/pairing"
	"github.com/coheara/engine/internal/profilestore"
	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
	"github.com/coheara/engine/pkg/extensions"
)

const nonceCacheCapacity = 4096

// Deps bundles everything the router needs to wire handlers to the live
// profile: the device registry, the coherence store repos, the audit
// log, and the notification hub.
type Deps struct {
	Pairing       *pairing.Registry
	Alerts        *store.AlertRepo
	Appointments  *store.AppointmentRepo
	Medications   *store.MedicationRepo
	Documents     *store.DocumentRepo
	Trust         *store.TrustRepo
	Symptoms      *store.SymptomRepo
	Conversations *store.ConversationRepo
	ChatMessages  *store.ChatMessageRepo
	App           *store.AppRepo
	Profiles      *profilestore.Manager
	Audit         extensions.AuditLogger
	Checker       *coherence.ConsistencyChecker
	Dismiss       *coherence.DismissalService
	Hub           *ws.Hub
	TicketMn      *wsticket.Minter
	Sync          *syncengine.Engine
	ProfileActive func() bool
}

// NewEngine builds a gin.Engine with the full protected chain
// (rate-limit → nonce → auth → audit) applied to every route under
// /api, plus the unauthenticated pairing and WebSocket-ticket-upgrade
// endpoints the chain cannot itself protect (spec §4.9, §4.10).
func NewEngine(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("coheara-mobileapi"), middleware.NoStore())

	router.GET("/health", healthHandler(deps.ProfileActive))
	router.POST("/api/auth/pair", pairHandler(deps.Pairing))
	router.GET("/ws", ws.Handler(deps.Hub, deps.TicketMn))

	limiter := ratelimit.New(0)
	nonces := noncecache.New(nonceCacheCapacity)

	api := router.Group("/api")
	api.Use(
		middleware.RateLimit(limiter),
		middleware.Nonce(nonces),
		middleware.Auth(deps.Pairing),
		middleware.Audit(deps.Audit),
	)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/ws-ticket", wsTicketHandler(deps.TicketMn))
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("/critical", listCriticalAlertsHandler(deps.Alerts))
			alerts.POST("/:id/ask-dismiss", askDismissHandler(deps.Dismiss))
			alerts.POST("/:id/confirm-dismiss", confirmDismissHandler(deps.Dismiss))
			alerts.POST("/:id/dismiss", dismissHandler(deps.Dismiss))
		}

		doctor := api.Group("/doctor")
		{
			doctor.POST("/scan", scanHandler(deps.Checker))
			doctor.POST("/repair", repairHandler(deps.Checker))
		}

		appts := api.Group("/appointments")
		{
			appts.GET("", listAppointmentsHandler(deps.Appointments))
			appts.GET("/:id/prep", appointmentPrepHandler(deps.Appointments))
		}

		chat := api.Group("/chat")
		{
			chat.POST("/send", chatSendHandler(deps.Conversations, deps.ChatMessages))
			chat.GET("/conversations", listConversationsHandler(deps.Conversations))
			chat.GET("/conversations/:id", getConversationHandler(deps.Conversations, deps.ChatMessages))
		}

		api.GET("/home", homeHandler(deps))

		journal := api.Group("/journal")
		{
			journal.POST("/record", journalRecordHandler(deps.Symptoms))
			journal.GET("/history", journalHistoryHandler(deps.Symptoms))
		}

		meds := api.Group("/medications")
		{
			meds.GET("", listMedicationsHandler(deps.Medications))
			meds.GET("/:id", getMedicationHandler(deps.Medications))
		}

		api.GET("/timeline/recent", timelineRecentHandler(deps.Documents))

		api.GET("/profiles/accessible", accessibleProfilesHandler(deps.App, deps.Profiles))

		syncGroup := api.Group("/sync")
		{
			syncGroup.POST("", syncHandler(deps.Sync))
			syncGroup.POST("/reset", resetSyncHandler(deps.Sync))
		}
	}

	return router
}
