// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import "strings"

// frenchDiacritics are letters that essentially never appear in English
// medical prose but are routine in French.
const frenchDiacritics = "éèêëàâùûüôîïç"

// frenchElisions are contractions unique to French (l'hôpital, d'un,
// qu'il, c'est); a single match is a strong enough signal on its own.
var frenchElisions = []string{"l'", "d'", "qu'", "c'est", "n'a", "j'ai"}

// DetectLanguage picks between French and English for the OCR backend:
// French if any French-specific diacritic or elision pattern appears in
// the sample, English otherwise. This is a structural detector, not a
// statistical classifier — OCR language selection only needs to be
// right often enough to pick the correct dictionary, not perfectly
// accurate.
func DetectLanguage(sample string) string {
	lower := strings.ToLower(sample)
	for _, r := range lower {
		if strings.ContainsRune(frenchDiacritics, r) {
			return "fr"
		}
	}
	for _, pattern := range frenchElisions {
		if strings.Contains(lower, pattern) {
			return "fr"
		}
	}
	return "en"
}
