package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MaxInputRunes caps how much document text is sent to the model.
	MaxInputRunes = 12000
	// MaxKeywords caps the keywords kept from a reply.
	MaxKeywords = 10
)

const enrichmentInstructions = `Return ONLY valid JSON in this exact format:
{
  "summary": "3-5 lines summary",
  "keywords": ["tag1","tag2","tag3","tag4","tag5"]
}

Document text:
`

// BuildEnrichmentPrompt trims text, caps it at MaxInputRunes and wraps it in
// the summary/keywords instructions.
func BuildEnrichmentPrompt(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyInput
	}
	runes := []rune(trimmed)
	if len(runes) > MaxInputRunes {
		trimmed = string(runes[:MaxInputRunes])
	}
	return enrichmentInstructions + trimmed, nil
}

// ParseEnrichment reads the JSON object embedded in raw. Non-string and blank
// keywords are dropped, duplicates are removed case-insensitively and at most
// MaxKeywords are kept.
func ParseEnrichment(raw string) (Enrichment, error) {
	obj, ok := jsonObjectSpan(raw)
	if !ok {
		return Enrichment{}, fmt.Errorf("%w: no JSON object in reply", ErrUnusableResult)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return Enrichment{}, fmt.Errorf("%w: %v", ErrUnusableResult, err)
	}

	summary, _ := parsed["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return Enrichment{}, fmt.Errorf("%w: empty summary", ErrUnusableResult)
	}

	rawKeywords, _ := parsed["keywords"].([]any)
	keywords := make([]string, 0, MaxKeywords)
	seen := make(map[string]struct{}, len(rawKeywords))
	for _, k := range rawKeywords {
		s, ok := k.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keywords = append(keywords, s)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return Enrichment{Summary: summary, Keywords: keywords}, nil
}

// jsonObjectSpan returns the text from the first '{' to the last '}'.
func jsonObjectSpan(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
