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
	"log"

	"github.com/spf13/cobra"

	"github.com/coheara/engine/config"
	"github.com/coheara/engine/internal/profilestore"
	"github.com/coheara/engine/internal/session"
	"github.com/coheara/engine/pkg/logging"
)

var (
	profilesMgr  *profilestore.Manager
	sessionState *session.State
	appLog       *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}

		appLog = logging.New(logging.Config{
			Level:   parseLevel(config.Global.Logging.Level),
			LogDir:  config.Global.Logging.Directory,
			Service: "coheara-cli",
		})

		root := config.ExpandPath(config.Global.ProfilesRoot)
		mgr, err := profilestore.NewManager(root)
		if err != nil {
			log.Fatalf("Error opening profiles root %q: %v", root, err)
		}
		profilesMgr = mgr
		sessionState = session.New(root, config.Global.InactivityTimeout())
	}
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
