// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coheara/engine/pkg/logging"
)

// ScanFunc inspects the staging directory for unprocessed files and
// pushes each one through Pipeline.Run. cmd/coheara's scanStagedFiles
// builds one over internal/profilestore's staged-file listing.
type ScanFunc func(ctx context.Context) error

// Scheduler runs ScanFunc on a fixed interval (spec §4.5's batch import:
// config.Ingestion.BatchIntervalMinutes), so files dropped into the
// staging directory outside of an explicit "import now" call are still
// picked up without the desktop UI polling for them.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger
}

// NewScheduler builds a Scheduler that invokes scan every intervalMinutes.
// A scan that returns an error is logged and does not stop the schedule.
func NewScheduler(intervalMinutes int, scan ScanFunc) (*Scheduler, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = 15
	}
	log := logging.Default()
	c := cron.New()
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := scan(ctx); err != nil {
			log.Warn("scheduled ingestion scan failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for any in-flight scan to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
