// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNew_RegistersDistinctInstancesWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		New()
		New()
	})
}

func TestRegistry_HandlerExposesRecordedMetrics(t *testing.T) {
	r := New()
	r.DocumentsProcessed.WithLabelValues("confirmed").Inc()
	r.AlertsRaised.WithLabelValues("critical_lab").Inc()
	r.SyncRequests.Inc()

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "coheara_pipeline_documents_total")
	require.Contains(t, body, `status="confirmed"`)
	require.Contains(t, body, "coheara_coherence_alerts_total")
	require.Contains(t, body, "coheara_sync_requests_total 1")
}

func TestInitTracing_InstallsAProviderThatWritesToTheGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing("coheara-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("coheara-test").Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "test-span")
}
