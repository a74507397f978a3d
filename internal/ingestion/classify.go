// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import "bytes"

var (
	magicPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPDF  = []byte{'%', 'P', 'D', 'F', '-'}
)

// pdfTextLayerMarkers are PDF operators that only appear when a page
// carries an extractable text layer (as opposed to a scanned raster
// embedded as an XObject image with no text stream).
var pdfTextLayerMarkers = [][]byte{[]byte("/Font"), []byte("BT\n"), []byte("BT\r")}

// Classify inspects a staged file's leading bytes and classifies it per
// spec §4.5's {Image, DigitalPdf, ScannedPdf, PlainText, Unsupported} set.
func Classify(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicPNG), bytes.HasPrefix(data, magicJPEG):
		return FormatImage
	case bytes.HasPrefix(data, magicPDF):
		if hasTextLayer(data) {
			return FormatDigitalPDF
		}
		return FormatScannedPDF
	case looksLikePlainText(data):
		return FormatPlainText
	default:
		return FormatUnsupported
	}
}

func hasTextLayer(data []byte) bool {
	for _, marker := range pdfTextLayerMarkers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

// looksLikePlainText treats a file as text if every byte in a leading
// sample is printable ASCII, a tab, or a line ending.
func looksLikePlainText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	for _, b := range sample {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}
