// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coherence

import (
	"fmt"
	"strings"
)

// DoseReference is one bundled {typical_min_mg, typical_max_mg,
// absolute_max_mg, unit} row (spec §4.6). A production build would load
// this from an updatable JSON file; a small, fixed set covers the
// medications this exercise needs to reason about.
type DoseReference struct {
	TypicalMinMg  float64
	TypicalMaxMg  float64
	AbsoluteMaxMg float64
	Unit          string
}

var doseReferences = map[string]DoseReference{
	"metformin":     {TypicalMinMg: 250, TypicalMaxMg: 2000, AbsoluteMaxMg: 3000, Unit: "mg"},
	"lisinopril":    {TypicalMinMg: 2.5, TypicalMaxMg: 40, AbsoluteMaxMg: 80, Unit: "mg"},
	"atorvastatin":  {TypicalMinMg: 10, TypicalMaxMg: 80, AbsoluteMaxMg: 80, Unit: "mg"},
	"amoxicillin":   {TypicalMinMg: 250, TypicalMaxMg: 1000, AbsoluteMaxMg: 3000, Unit: "mg"},
	"levothyroxine": {TypicalMinMg: 0.025, TypicalMaxMg: 0.2, AbsoluteMaxMg: 0.3, Unit: "mg"},
	"omeprazole":    {TypicalMinMg: 10, TypicalMaxMg: 40, AbsoluteMaxMg: 80, Unit: "mg"},
}

// medicationAliases maps a lowercase brand name to its generic name.
var medicationAliases = map[string]string{
	"glucophage": "metformin",
	"fortamet":   "metformin",
	"zestril":    "lisinopril",
	"prinivil":   "lisinopril",
	"lipitor":    "atorvastatin",
	"amoxil":     "amoxicillin",
	"synthroid":  "levothyroxine",
	"prilosec":   "omeprazole",
}

// DoseVerdict is the closed set spec §4.6 classifies an input dose into.
type DoseVerdict string

const (
	DosePlausible         DoseVerdict = "plausible"
	DoseLow               DoseVerdict = "low_dose"
	DoseHigh              DoseVerdict = "high_dose"
	DoseVeryHigh          DoseVerdict = "very_high_dose"
	DoseUnknownMedication DoseVerdict = "unknown_medication"
)

// DoseCheck is the result of CheckDose: a verdict plus, for anything
// short of Plausible, a patient-safe message describing what was seen
// and suggesting verification — never medical advice.
type DoseCheck struct {
	Verdict      DoseVerdict
	Message      string
	GenericName  string
	NormalizedMg float64
}

// ConvertToMg normalizes a dose value to milligrams: mg unchanged, g
// multiplied by 1000, mcg/µg divided by 1000, anything unrecognized is
// treated as already being in mg (spec §4.6).
func ConvertToMg(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mg":
		return value
	case "g":
		return value * 1000
	case "mcg", "ug", "µg":
		return value / 1000
	default:
		return value
	}
}

// ResolveGeneric resolves a brand name to its generic name via the
// bundled alias table; a name that is not a known brand is returned
// unchanged (it may already be generic, or simply unknown).
func ResolveGeneric(medicationName string) string {
	lower := strings.ToLower(strings.TrimSpace(medicationName))
	if generic, ok := medicationAliases[lower]; ok {
		return generic
	}
	return lower
}

// CheckDose classifies an extracted dose against the bundled reference
// table (spec §4.6): Plausible, LowDose (< typical_min × 0.5), HighDose
// (> typical_max), VeryHighDose (> absolute_max × 5), or
// UnknownMedication when the generic name isn't in the reference table.
func CheckDose(medicationName string, doseValue float64, doseUnit string) DoseCheck {
	generic := ResolveGeneric(medicationName)
	ref, ok := doseReferences[generic]
	if !ok {
		return DoseCheck{Verdict: DoseUnknownMedication, GenericName: generic}
	}

	mg := ConvertToMg(doseValue, doseUnit)
	switch {
	case mg > ref.AbsoluteMaxMg*5:
		return DoseCheck{
			Verdict: DoseVeryHigh, GenericName: generic, NormalizedMg: mg,
			Message: fmt.Sprintf(
				"I extracted %.2fmg for %s but the absolute maximum is %.2fmg. This may be an extraction error — please double-check this value.",
				mg, medicationName, ref.AbsoluteMaxMg),
		}
	case mg > ref.TypicalMaxMg:
		return DoseCheck{
			Verdict: DoseHigh, GenericName: generic, NormalizedMg: mg,
			Message: fmt.Sprintf(
				"I extracted %.2fmg for %s but the typical range is %.2f-%.2fmg. Please verify this value.",
				mg, medicationName, ref.TypicalMinMg, ref.TypicalMaxMg),
		}
	case ref.TypicalMinMg > 0 && mg < ref.TypicalMinMg*0.5:
		return DoseCheck{
			Verdict: DoseLow, GenericName: generic, NormalizedMg: mg,
			Message: fmt.Sprintf(
				"I extracted %.2fmg for %s but the typical minimum is %.2fmg. Please verify this value.",
				mg, medicationName, ref.TypicalMinMg),
		}
	default:
		return DoseCheck{Verdict: DosePlausible, GenericName: generic, NormalizedMg: mg}
	}
}
