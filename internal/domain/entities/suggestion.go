package entities

import (
	"strings"
	"unicode"
)

// SuggestionSource tags documents written by this service
const SuggestionSource = "ai_scribe_v1"

// SuggestionMetadata is stored alongside each indexed consultation. Fields are
// typed lists end to end.
type SuggestionMetadata struct {
	SessionID   string   `json:"session_id"`
	Diagnosis   []string `json:"diagnosis,omitempty"`
	Tests       []string `json:"tests,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Source      string   `json:"source"`
}

// SuggestionDocument is what gets indexed for one finalized consultation
type SuggestionDocument struct {
	Text     string             `json:"text"`
	Terms    []string           `json:"terms"`
	Metadata SuggestionMetadata `json:"metadata"`
}

// SuggestionCount is one ranked suggestion
type SuggestionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Suggestions aggregates what similar past consultations recorded
type Suggestions struct {
	BasedOnCases int               `json:"based_on_cases"`
	Diagnosis    []SuggestionCount `json:"diagnosis"`
	Tests        []SuggestionCount `json:"tests"`
	Medications  []SuggestionCount `json:"medications"`
}

// EmptySuggestions is returned whenever the index cannot help
func EmptySuggestions() Suggestions {
	return Suggestions{
		Diagnosis:   []SuggestionCount{},
		Tests:       []SuggestionCount{},
		Medications: []SuggestionCount{},
	}
}

var suggestionStopwords = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "with": {}, "symptoms": {}, "investigations": {},
	"diagnosis": {}, "medications": {}, "tests": {}, "advised": {}, "advice": {},
}

// SuggestionTerms tokenizes text into the lowercased terms the suggestion
// index matches on. Terms are unique and keep their first-seen order.
func SuggestionTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := suggestionStopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
