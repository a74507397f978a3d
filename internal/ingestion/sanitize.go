// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"strings"
	"unicode"
)

// medicalPunctuation is kept even though it falls outside letters,
// digits, and ordinary sentence punctuation: µ (micrograms), ° (degrees,
// temperature), ± (reference range tolerances), and × (dose multipliers)
// all appear routinely in lab and prescription text.
var medicalPunctuation = map[rune]bool{
	'µ': true, '°': true, '±': true, '×': true, '%': true, '/': true,
	'.': true, ',': true, ':': true, ';': true, '-': true, '(': true, ')': true,
}

// SanitizeText strips control characters, collapses runs of blank lines
// to one, and trims trailing whitespace from every line, while keeping
// letters, digits, ordinary punctuation, and the medical punctuation set
// above. It never alters character case or reorders content.
func SanitizeText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		lines = append(lines, sanitizeLine(line))
	}
	return collapseBlankLines(lines)
}

func sanitizeLine(line string) string {
	var b strings.Builder
	for _, r := range line {
		if r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || medicalPunctuation[r] {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " \t")
}

func collapseBlankLines(lines []string) string {
	var out []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
