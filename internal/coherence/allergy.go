// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coherence

import "strings"

// ConflictsWithAllergy reports whether a medication name matches a known
// allergy substance closely enough to warrant a conflict alert (spec §3,
// "allergy conflicts"). Matching is a case-insensitive substring check in
// both directions against the resolved generic name and the raw input,
// since extracted substance names and medication names aren't guaranteed
// to agree on brand vs. generic.
func ConflictsWithAllergy(medicationName string, allergySubstances []string) (string, bool) {
	generic := ResolveGeneric(medicationName)
	med := strings.ToLower(strings.TrimSpace(medicationName))

	for _, substance := range allergySubstances {
		sub := strings.ToLower(strings.TrimSpace(substance))
		if sub == "" {
			continue
		}
		if strings.Contains(med, sub) || strings.Contains(sub, med) ||
			strings.Contains(generic, sub) || strings.Contains(sub, generic) {
			return substance, true
		}
	}
	return "", false
}
