// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"fmt"
	"strings"

	"github.com/coheara/engine/internal/store"
)

// renderEntityMarkdown turns one structured entity into a line of the
// document's encrypted markdown summary. Formatting is deliberately
// plain: this text exists for search indexing and human review, not
// display.
func renderEntityMarkdown(e StructuredEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- **%s**", strings.ReplaceAll(e.Kind, "_", " "))
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if v := fieldString(e.Fields, k); v != "" {
			fmt.Fprintf(&b, " %s: %s;", k, v)
		}
	}
	return b.String()
}

// criticalLabDetail builds the patient-facing alert text for a critical
// lab value.
func criticalLabDetail(l store.LabResult) string {
	direction := "low"
	if l.AbnormalFlag == store.FlagCriticalHigh {
		direction = "high"
	}
	return fmt.Sprintf("%s is critically %s: %.2f %s", l.TestName, direction, l.Value, l.Unit)
}
