package extraction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// triplePrompt asks the model to produce subject-predicate-object triples as
// strict JSON. Kept atomic and example-heavy so small local models comply.
const triplePrompt = `You are a triple extraction engine for infrastructure and operations documents.
Extract factual (subject, predicate, object) assertions from the following text window.

Return a JSON object with exactly one key:
  "triples" : array of {"subject": string, "predicate": string, "object": string, "confidence": number}

Rules:
- subject, predicate, and object must be non-empty strings grounded in the text.
- confidence is a float between 0.0 and 1.0.
- Only include assertions clearly supported by the text.
- If there are none, return {"triples": []}.
- Do NOT include any text outside the JSON object.

EXAMPLES:

Input: "api-service depends on postgres and exposes port 8080."
Output:
{"triples": [{"subject": "api-service", "predicate": "depends_on", "object": "postgres", "confidence": 0.95}, {"subject": "api-service", "predicate": "exposes_port", "object": "8080", "confidence": 0.9}]}

Input: "The gateway device gw-01 is a member of tailnet homelab."
Output:
{"triples": [{"subject": "gw-01", "predicate": "member_of", "object": "homelab", "confidence": 0.9}]}

TEXT:
%s`

func buildPrompt(window string) string {
	return fmt.Sprintf(triplePrompt, window)
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON attempts to find a valid JSON object in the LLM response text.
// It handles common LLM quirks: markdown code blocks, text before/after JSON.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}

	return "", fmt.Errorf("no JSON object found in response")
}

// parseResult decodes an LLM response into a Result. Tier C is best-effort:
// any deviation from the contract collapses to zero triples with a warning,
// and schema-invalid triples are dropped individually.
func parseResult(raw string, log *slog.Logger) Result {
	out := Result{Triples: []Triple{}}

	jsonStr, err := extractJSON(raw)
	if err != nil {
		log.Warn("extraction: no JSON in tier-c response", "error", err)
		return out
	}

	var decoded Result
	if err := json.Unmarshal([]byte(jsonStr), &decoded); err != nil {
		log.Warn("extraction: undecodable tier-c response", "error", err)
		return out
	}

	for _, t := range decoded.Triples {
		if err := t.Validate(); err != nil {
			log.Warn("extraction: dropping invalid triple",
				"subject", t.Subject, "predicate", t.Predicate, "error", err)
			continue
		}
		out.Triples = append(out.Triples, t)
	}
	return out
}
