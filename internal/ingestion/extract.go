// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/coheara/engine/pkg/cherr"
)

// minTextLayerChars is the non-whitespace-character floor below which a
// DigitalPdf page is treated as having no usable text layer and is
// given confidence 0 (spec §4.5).
const minTextLayerChars = 10

// ExtractDigitalPDF pulls the embedded text layer from a PDF page by
// page. Pages below the text-layer floor are returned with confidence 0;
// they are not sent to OCR, so such a page keeps the document out of
// automatic verification.
func ExtractDigitalPDF(data []byte) ([]ExtractedPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, cherr.Wrap(cherr.BadRequest, "open pdf for text extraction", err)
	}

	pages := make([]ExtractedPage, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, ExtractedPage{Confidence: 0})
			continue
		}
		if nonWhitespaceLen(text) < minTextLayerChars {
			pages = append(pages, ExtractedPage{Text: text, Confidence: 0})
			continue
		}
		pages = append(pages, ExtractedPage{Text: SanitizeText(text), Confidence: 1.0, Language: DetectLanguage(text)})
	}
	return pages, nil
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r", r) {
			n++
		}
	}
	return n
}

// OCRResult is one page's recognized text plus the engine's own
// confidence, at page and word granularity.
type OCRResult struct {
	Text            string
	PageConfidence  float64
	WordConfidences []float64
}

// TextExtractor abstracts the OCR backend used for Image and ScannedPdf
// documents. No concrete cloud OCR integration is wired here — doing so
// would require a live network credential this module cannot assume —
// but every caller in the pipeline is written against this interface so
// a deployment can plug in its OCR engine of choice.
type TextExtractor interface {
	// Recognize OCRs a single rendered page image at the given language
	// hint ("en" or "fr").
	Recognize(pageImage []byte, language string) (OCRResult, error)
}

// LocalStubExtractor is a TextExtractor that performs no real OCR; it
// exists so the pipeline is exercisable and testable without a network
// dependency or a vendored OCR engine. A production deployment replaces
// it with a real backend via internal/ingestion's pipeline constructor.
type LocalStubExtractor struct{}

func (LocalStubExtractor) Recognize(pageImage []byte, language string) (OCRResult, error) {
	return OCRResult{Text: "", PageConfidence: 0, WordConfidences: nil}, nil
}

var _ TextExtractor = LocalStubExtractor{}
