// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage_EnglishDefault(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("Patient presents with elevated blood pressure."))
}

func TestDetectLanguage_DiacriticsSignalFrench(t *testing.T) {
	assert.Equal(t, "fr", DetectLanguage("Le patient présente une tension élevée."))
}

func TestDetectLanguage_ElisionSignalsFrench(t *testing.T) {
	assert.Equal(t, "fr", DetectLanguage("Rendez-vous a l'hopital demain matin pour les resultats."))
}

func TestDetectLanguage_EmptySampleDefaultsToEnglish(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage(""))
}
