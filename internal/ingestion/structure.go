// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/coheara/engine/pkg/cherr"
)

// StructuringModel abstracts the instruction-following model spec §6
// calls "structuring" — sanitized page text in, a set of entities with
// per-entity confidence out. Mirrors the teacher's own LLMClient
// abstraction (services/llm.LLMClient): one interface, swappable
// backends, no caller depending on a concrete model.
type StructuringModel interface {
	Structure(ctx context.Context, text string) ([]StructuredEntity, error)
}

// entityKinds is the closed set of entity kinds the structuring prompt
// is allowed to emit (spec §4.5).
var entityKinds = map[string]bool{
	"medication": true, "lab_result": true, "diagnosis": true, "allergy": true,
	"procedure": true, "referral": true, "instruction": true, "professional": true,
	"symptom": true, "appointment": true,
}

const structuringPrompt = `Extract structured medical entities from the following clinical document text.
Return a JSON array; each element has "kind" (one of: medication, lab_result, diagnosis,
allergy, procedure, referral, instruction, professional, symptom, appointment), "confidence" (0 to 1),
and "fields" (an object with the entity's extracted values). Emit nothing for text you are
not confident describes a real entity. Return only the JSON array, no commentary.

Text:
%s`

// LangchainStructuringModel is the concrete StructuringModel backed by
// langchaingo's model-agnostic llms.Model interface, so the same code
// path works against any backend langchaingo supports (Anthropic,
// OpenAI, Ollama) without this package depending on a specific one.
type LangchainStructuringModel struct {
	Model llms.Model
}

func (m *LangchainStructuringModel) Structure(ctx context.Context, text string) ([]StructuredEntity, error) {
	prompt := strings.Replace(structuringPrompt, "%s", text, 1)
	raw, err := llms.GenerateFromSinglePrompt(ctx, m.Model, prompt)
	if err != nil {
		return nil, cherr.Wrap(cherr.Internal, "structuring model call failed", err)
	}
	return parseStructuredEntities(raw)
}

type rawEntity struct {
	Kind       string         `json:"kind"`
	Confidence float64        `json:"confidence"`
	Fields     map[string]any `json:"fields"`
}

// parseStructuredEntities parses the model's JSON array response,
// silently dropping any element whose kind is outside the closed set
// rather than failing the whole page — a single hallucinated kind
// should not discard every other entity the model got right.
func parseStructuredEntities(raw string) ([]StructuredEntity, error) {
	raw = extractJSONArray(raw)
	var parsed []rawEntity
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, cherr.Wrap(cherr.BadRequest, "parse structuring model output", err)
	}

	out := make([]StructuredEntity, 0, len(parsed))
	for _, e := range parsed {
		if !entityKinds[e.Kind] {
			continue
		}
		out = append(out, StructuredEntity{Kind: e.Kind, Fields: e.Fields, Confidence: e.Confidence})
	}
	return out, nil
}

// extractJSONArray trims any leading/trailing prose a model adds around
// the JSON array despite being asked not to.
func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end < 0 || end < start {
		return "[]"
	}
	return s[start : end+1]
}

var _ StructuringModel = (*LangchainStructuringModel)(nil)
