// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/coheara/engine/config"
	"github.com/coheara/engine/internal/coherence"
	"github.com/coheara/engine/internal/ingestion"
	"github.com/coheara/engine/internal/metrics"
	"github.com/coheara/engine/internal/mobileapi"
	"github.com/coheara/engine/internal/mobileapi/ws"
	"github.com/coheara/engine/internal/mobileapi/wsticket"
	"github.com/coheara/engine/internal/pairing"
	"github.com/coheara/engine/internal/profilestore"
	"github.com/coheara/engine/internal/session"
	"github.com/coheara/engine/internal/store"
	syncengine "github.com/coheara/engine/internal/sync"
)

var (
	rootCmd = &cobra.Command{
		Use:   "coheara",
		Short: "Manage the Coheara personal health record engine",
		Long: `Coheara is a single-user, offline-first personal health record
engine. It ingests clinical documents, extracts structured entities,
flags coherence issues across your record, and serves a paired mobile
companion over the local network — without talking to any remote
service.`,
	}

	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Create, list, and unlock profiles",
	}
	profileCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new profile",
		Long:  `Creates a profile, deriving its encryption key from --password and printing a recovery phrase that is never stored and cannot be recovered if lost.`,
		Args:  cobra.ExactArgs(1),
		Run:   runProfileCreate,
	}
	profileListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every registered profile",
		Run:   runProfileList,
	}
	profileUnlockCmd = &cobra.Command{
		Use:   "unlock [profile-id]",
		Short: "Verify a profile's password without starting the server",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileUnlock,
	}
	profilePassword string

	migrateCmd = &cobra.Command{
		Use:   "migrate [profile-id]",
		Short: "Open a profile's database, running any pending schema migrations",
		Args:  cobra.ExactArgs(1),
		Run:   runMigrate,
	}

	doctorCmd = &cobra.Command{
		Use:   "doctor [profile-id]",
		Short: "Scan a profile's record for consistency issues",
		Long:  `Runs the same consistency scan spec'd for spec §4.6/§4.7's desktop "run consistency check" action, from the command line.`,
		Args:  cobra.ExactArgs(1),
		Run:   runDoctor,
	}

	serveCmd = &cobra.Command{
		Use:   "serve [profile-id]",
		Short: "Unlock a profile and start the mobile API and ingestion pipeline",
		Args:  cobra.ExactArgs(1),
		Run:   runServe,
	}
	ollamaModel string
	pairOnStart bool
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCreateCmd.Flags().StringVar(&profilePassword, "password", "", "password to derive the profile's encryption key from (required)")
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileUnlockCmd)
	profileUnlockCmd.Flags().StringVar(&profilePassword, "password", "", "the profile's password (required)")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&profilePassword, "password", "", "the profile's password (required)")

	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&profilePassword, "password", "", "the profile's password (required)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&profilePassword, "password", "", "the profile's password (required)")
	serveCmd.Flags().StringVar(&ollamaModel, "model", "llama3", "the local Ollama model to use for document structuring")
	serveCmd.Flags().BoolVar(&pairOnStart, "pair", false, "open a pairing window for a new device immediately on startup")
}

func runProfileCreate(cmd *cobra.Command, args []string) {
	if profilePassword == "" {
		log.Fatal("--password is required")
	}
	_, phrase, err := profilesMgr.CreateProfile(args[0], profilePassword, "")
	if err != nil {
		log.Fatalf("Could not create profile: %v", err)
	}
	fmt.Println("Profile created.")
	fmt.Println()
	fmt.Println("Recovery phrase (write this down; it is shown exactly once and cannot be recovered):")
	fmt.Println(phrase)
}

func runProfileList(cmd *cobra.Command, args []string) {
	profiles := profilesMgr.List()
	if len(profiles) == 0 {
		fmt.Println("No profiles registered.")
		return
	}
	for _, p := range profiles {
		fmt.Printf("%s\t%s\tcreated %s\n", p.ID, p.Name, p.CreatedAt.Format(time.RFC3339))
	}
}

func runProfileUnlock(cmd *cobra.Command, args []string) {
	if profilePassword == "" {
		log.Fatal("--password is required")
	}
	unlocked, err := profilesMgr.Unlock(args[0], profilePassword)
	if err != nil {
		log.Fatalf("Unlock failed: %v", err)
	}
	unlocked.Key.Destroy()
	fmt.Println("Password correct.")
}

func runMigrate(cmd *cobra.Command, args []string) {
	unlocked := mustUnlock(args[0])
	defer unlocked.Key.Destroy()

	db, err := store.Open(unlocked.DatabasePath, unlocked.Key)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if err := db.Close(unlocked.DatabasePath); err != nil {
		log.Fatalf("Error resealing database after migration: %v", err)
	}
	fmt.Println("Schema is current.")
}

func runDoctor(cmd *cobra.Command, args []string) {
	unlocked := mustUnlock(args[0])
	defer unlocked.Key.Destroy()

	db, err := store.Open(unlocked.DatabasePath, unlocked.Key)
	if err != nil {
		log.Fatalf("Could not open profile database: %v", err)
	}
	defer db.Close(unlocked.DatabasePath)

	checker := coherence.NewConsistencyChecker(
		store.NewDocumentRepo(db), store.NewMedicationRepo(db), store.NewLabResultRepo(db),
		store.NewDiagnosisRepo(db), store.NewAllergyRepo(db), store.NewSearchRepo(db),
		store.NewTrustRepo(db), syncengine.NewVersionRepo(db.DB),
	)
	findings, err := checker.Scan()
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	if len(findings) == 0 {
		fmt.Println("No issues found.")
		return
	}
	for _, f := range findings {
		fmt.Printf("[%s] %s: %s\n", f.Severity, f.Category, f.Description)
	}
}

// mustUnlock unlocks profileID with --password or exits the process; it
// exists so migrate/doctor/serve share the same failure message.
func mustUnlock(profileID string) *profilestore.UnlockedProfile {
	if profilePassword == "" {
		log.Fatal("--password is required")
	}
	unlocked, err := profilesMgr.Unlock(profileID, profilePassword)
	if err != nil {
		log.Fatalf("Unlock failed: %v", err)
	}
	return unlocked
}

func runServe(cmd *cobra.Command, args []string) {
	profileID := args[0]
	unlocked := mustUnlock(profileID)
	sessionState.SetActive(&session.Active{
		ProfileID:    unlocked.ProfileID,
		ProfileName:  unlocked.ProfileName,
		Key:          unlocked.Key,
		DatabasePath: unlocked.DatabasePath,
	})
	defer sessionState.Lock()

	db, err := store.Open(unlocked.DatabasePath, unlocked.Key)
	if err != nil {
		log.Fatalf("Could not open profile database: %v", err)
	}
	defer db.Close(unlocked.DatabasePath)

	appDB, err := store.OpenApp(profilesMgr.AppDBPath())
	if err != nil {
		log.Fatalf("Could not open app registry: %v", err)
	}
	defer appDB.Close()

	metricsReg := metrics.New()
	shutdownTracing, err := metrics.InitTracing("coheara-mobileapi", os.Stderr)
	if err != nil {
		log.Fatalf("Could not start tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	docs := store.NewDocumentRepo(db)
	meds := store.NewMedicationRepo(db)
	labs := store.NewLabResultRepo(db)
	diagnoses := store.NewDiagnosisRepo(db)
	allergies := store.NewAllergyRepo(db)
	professionals := store.NewProfessionalRepo(db)
	alerts := store.NewAlertRepo(db)
	trust := store.NewTrustRepo(db)
	search := store.NewSearchRepo(db)
	appts := store.NewAppointmentRepo(db)
	symptoms := store.NewSymptomRepo(db)
	conversations := store.NewConversationRepo(db)
	chatMessages := store.NewChatMessageRepo(db)
	tokens := store.NewDeviceTokenRepo(db)
	audit := store.NewAuditRepo(db)
	versions := syncengine.NewVersionRepo(db.DB)
	_ = professionals

	model, err := ollama.New(ollama.WithModel(ollamaModel))
	if err != nil {
		log.Fatalf("Could not reach local Ollama daemon: %v", err)
	}
	pipelineCfg := ingestion.Config{
		NearDuplicateHammingThreshold: config.Global.Ingestion.NearDuplicateHammingThreshold,
		OCRConfidenceFloor:            config.Global.Ingestion.OCRConfidenceFloor,
		StructuringConfidenceFloor:    config.Global.Ingestion.StructuringConfidenceFloor,
	}
	pipeline := ingestion.NewPipeline(
		db, ingestion.LocalStubExtractor{}, &ingestion.LangchainStructuringModel{Model: model},
		profilesMgr.MarkdownWriter(unlocked.ProfileID, unlocked.Key), audit, pipelineCfg,
	)
	scheduler, err := ingestion.NewScheduler(config.Global.Ingestion.BatchIntervalMinutes, scanStagedFiles(pipeline, unlocked.ProfileID))
	if err != nil {
		log.Fatalf("Could not start ingestion scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	appRepo := store.NewAppRepo(appDB)
	pairingReg := pairing.NewRegistry(
		appRepo,
		config.Global.Mobile.MaxDevicesPerProfile,
		time.Duration(config.Global.Mobile.PairingWindowSeconds)*time.Second,
		time.Duration(config.Global.Mobile.TokenRotationGraceSecs)*time.Second,
	)
	if err := pairingReg.SetActiveProfile(unlocked.ProfileID, unlocked.ProfileName, tokens); err != nil {
		log.Fatalf("Could not bind pairing registry to profile: %v", err)
	}

	minter, err := wsticket.NewMinter()
	if err != nil {
		log.Fatalf("Could not start WebSocket ticket minter: %v", err)
	}
	hub := ws.NewHub()
	pairingReg.OnRevoke(func(deviceID string) { hub.CloseDevice(deviceID) })

	checker := coherence.NewConsistencyChecker(docs, meds, labs, diagnoses, allergies, search, trust, versions)
	dismiss := coherence.NewDismissalService(alerts, versions, audit)
	syncEngine := syncengine.NewEngine(versions, meds, labs, docs, alerts, appts, trust, symptoms)

	engine := mobileapi.NewEngine(mobileapi.Deps{
		Pairing:       pairingReg,
		Alerts:        alerts,
		Appointments:  appts,
		Medications:   meds,
		Documents:     docs,
		Trust:         trust,
		Symptoms:      symptoms,
		Conversations: conversations,
		ChatMessages:  chatMessages,
		App:           appRepo,
		Profiles:      profilesMgr,
		Audit:         audit,
		Checker:       checker,
		Dismiss:       dismiss,
		Hub:           hub,
		TicketMn:      minter,
		Sync:          syncEngine,
		ProfileActive: func() bool { return sessionState.Active() != nil },
	})

	cert, err := generateSelfSignedCert()
	if err != nil {
		log.Fatalf("Could not prepare TLS certificate: %v", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	addr := fmt.Sprintf(":%d", config.Global.Mobile.Port)
	mobileServer := mobileapi.NewServer(addr, engine, tlsConfig)
	sessionState.SetMobileServer(mobileServer)
	if err := mobileServer.Start(); err != nil {
		log.Fatalf("Could not start mobile API server: %v", err)
	}

	if pairOnStart {
		if err := startPairingWindow(pairingReg, cert, config.Global.Mobile.Port); err != nil {
			appLog.Warn("could not open pairing window", "error", err)
		}
	}

	metricsServer := &http.Server{Addr: fmt.Sprintf("%s:%d", config.Global.Server.Host, config.Global.Server.Port), Handler: metricsReg.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Warn("metrics server stopped", "error", err)
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	appLog.Info("coheara serving", "profile_id", unlocked.ProfileID, "mobile_port", config.Global.Mobile.Port)

	inactivityTicker := time.NewTicker(time.Minute)
	defer inactivityTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			appLog.Info("shutting down on signal")
			return
		case <-inactivityTicker.C:
			if sessionState.CheckTimeout() {
				appLog.Info("locking on inactivity timeout")
				return
			}
		}
	}
}

// scanStagedFiles builds the Scheduler.ScanFunc that drives batch import
// (spec §4.5): every file waiting in profileID's staging directories is
// run through the pipeline and, on a terminal outcome, removed so the
// next scan doesn't reprocess it. A file left behind after a failed run
// is retried on the next interval.
func scanStagedFiles(pipeline *ingestion.Pipeline, profileID string) ingestion.ScanFunc {
	return func(ctx context.Context) error {
		paths, err := profilesMgr.StagedFiles(profileID)
		if err != nil {
			return err
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				appLog.Warn("batch import: could not read staged file", "path", path, "error", err)
				continue
			}
			if _, err := pipeline.Run(ctx, data, path); err != nil {
				appLog.Warn("batch import: pipeline run failed", "path", path, "error", err)
				continue
			}
			if err := os.Remove(path); err != nil {
				appLog.Warn("batch import: could not remove processed staged file", "path", path, "error", err)
			}
		}
		return nil
	}
}

// startPairingWindow opens a single pairing window: it prints the QR
// payload's fields for the user to transcribe (or a companion tool to
// render as a QR code) and watches for the phone's request in the
// background, prompting on stdin to approve or deny it (spec §4.9 steps
// 2-3).
func startPairingWindow(reg *pairing.Registry, cert tls.Certificate, port int) error {
	fingerprint, err := certFingerprintSHA256(cert)
	if err != nil {
		return err
	}
	fingerprintHex := fmt.Sprintf("%x", fingerprint)
	serverURL := fmt.Sprintf("https://%s:%d", localLANAddress(), port)

	payload, err := reg.StartPairing(serverURL, fingerprintHex)
	if err != nil {
		return err
	}
	fmt.Println("Pairing window open:")
	fmt.Printf("  server_url: %s\n", payload.ServerURL)
	fmt.Printf("  fingerprint: %s\n", payload.Fingerprint)
	fmt.Printf("  token: %s\n", payload.Token)

	go watchPendingPairing(reg)
	return nil
}

// watchPendingPairing polls for a phone's pairing request and prompts
// the operator on stdin to approve or deny it, since this CLI has no
// desktop UI to surface the request in.
func watchPendingPairing(reg *pairing.Registry) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	reader := bufio.NewReader(os.Stdin)

	for range ticker.C {
		pending := reg.ListPendingRequests()
		if len(pending) == 0 {
			continue
		}
		req := pending[0]
		fmt.Printf("Pairing request from %q (%s). Approve? [y/N] ", req.DeviceName, req.DeviceModel)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) == "y" {
			if _, err := reg.ApprovePairing(req.Token); err != nil {
				appLog.Warn("approve pairing failed", "error", err)
			}
		} else if err := reg.DenyPairing(req.Token); err != nil {
			appLog.Warn("deny pairing failed", "error", err)
		}
		return
	}
}

// localLANAddress best-effort discovers this machine's LAN IP so the QR
// payload's server_url is reachable from the phone; falls back to
// localhost if no outbound route is found, which only the desktop
// machine itself can then reach.
func localLANAddress() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
