// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

// ComputeVerified decides whether a document's verified flag may be set
// automatically: only when every page's OCR confidence clears ocrFloor
// and every extracted entity's structuring confidence clears
// structuringFloor (config.Ingestion.OCRConfidenceFloor /
// StructuringConfidenceFloor). Anything short of that lands in
// pending_review, and verified is set only by a human confirming the
// review (spec §4.5, §9). Empty lists impose no constraint: a document
// with no pages and no entities is trivially verified.
func ComputeVerified(pageConfidences, entityConfidences []float64, ocrFloor, structuringFloor float64) bool {
	for _, c := range pageConfidences {
		if c < ocrFloor {
			return false
		}
	}
	for _, c := range entityConfidences {
		if c < structuringFloor {
			return false
		}
	}
	return true
}
