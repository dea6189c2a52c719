// Package suggestion indexes finalized consultations and aggregates what
// similar past consultations recorded. Suggestions are advisory only and
// never feed back into a session's clinical state.
package suggestion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/internal/domain/repositories"
)

const (
	defaultTopK  = 7
	perListLimit = 3
	fallbackText = "Clinical consultation recorded."
)

// Service implements the session suggester on top of a SuggestionIndex
type Service struct {
	index  repositories.SuggestionIndex
	topK   int
	logger *zap.Logger
}

// NewService creates a suggestion service. topK <= 0 uses the default.
func NewService(index repositories.SuggestionIndex, topK int, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Service{index: index, topK: topK, logger: logger}
}

// Index stores a finalized consultation
func (s *Service) Index(ctx context.Context, sessionID string, state entities.ClinicalState) error {
	doc := BuildDocument(sessionID, state)
	if err := s.index.Upsert(ctx, sessionID, doc); err != nil {
		return fmt.Errorf("index consultation %s: %w", sessionID, err)
	}
	if s.logger != nil {
		s.logger.Info("📚 Consultation indexed", zap.String("session_id", sessionID))
	}
	return nil
}

// Suggest queries with the symptoms and investigations of state. An empty
// query returns empty suggestions without touching the index.
func (s *Service) Suggest(ctx context.Context, state entities.ClinicalState) (entities.Suggestions, error) {
	query := QueryText(state)
	if query == "" {
		return entities.EmptySuggestions(), nil
	}
	return s.Lookup(ctx, query, s.topK)
}

// Lookup queries the index with free text
func (s *Service) Lookup(ctx context.Context, query string, k int) (entities.Suggestions, error) {
	if strings.TrimSpace(query) == "" {
		return entities.EmptySuggestions(), nil
	}
	if k <= 0 {
		k = s.topK
	}
	metas, err := s.index.Query(ctx, query, k)
	if err != nil {
		return entities.EmptySuggestions(), fmt.Errorf("query suggestions: %w", err)
	}
	return Aggregate(metas), nil
}

// BuildDocument renders the indexed form of a consultation
func BuildDocument(sessionID string, state entities.ClinicalState) entities.SuggestionDocument {
	var parts []string
	add := func(label string, values []string) {
		if len(values) > 0 {
			parts = append(parts, label+": "+strings.Join(values, ", "))
		}
	}

	diagnosis := state.Diagnosis.Labels()
	medications := state.Medications.Labels()
	tests := state.Tests.Labels()

	add("Diagnosis", diagnosis)
	add("Medications", medications)
	add("Tests advised", tests)
	add("Symptoms", state.Symptoms.Labels())
	add("Investigations", state.Investigations.Labels())
	add("Advice", state.Advice.Labels())

	text := fallbackText
	if len(parts) > 0 {
		text = strings.Join(parts, ". ")
	}

	return entities.SuggestionDocument{
		Text:  text,
		Terms: entities.SuggestionTerms(text),
		Metadata: entities.SuggestionMetadata{
			SessionID:   sessionID,
			Diagnosis:   diagnosis,
			Tests:       tests,
			Medications: medications,
			Source:      entities.SuggestionSource,
		},
	}
}

// QueryText builds a query from the signals the patient side provides
func QueryText(state entities.ClinicalState) string {
	var parts []string
	if symptoms := state.Symptoms.Labels(); len(symptoms) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(symptoms, ", "))
	}
	if inv := state.Investigations.Labels(); len(inv) > 0 {
		parts = append(parts, "Investigations: "+strings.Join(inv, ", "))
	}
	return strings.Join(parts, ". ")
}

// Aggregate counts the lists of the matched consultations and keeps the
// most common entries of each
func Aggregate(metas []entities.SuggestionMetadata) entities.Suggestions {
	out := entities.EmptySuggestions()
	if len(metas) == 0 {
		return out
	}

	var diagnosis, tests, medications []string
	for _, m := range metas {
		diagnosis = append(diagnosis, m.Diagnosis...)
		tests = append(tests, m.Tests...)
		medications = append(medications, m.Medications...)
	}

	out.BasedOnCases = len(metas)
	out.Diagnosis = mostCommon(diagnosis, perListLimit)
	out.Tests = mostCommon(tests, perListLimit)
	out.Medications = mostCommon(medications, perListLimit)
	return out
}

// mostCommon ranks by count, then by first appearance
func mostCommon(values []string, n int) []entities.SuggestionCount {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]entities.SuggestionCount, 0, len(order))
	for _, v := range order {
		out = append(out, entities.SuggestionCount{Name: v, Count: counts[v]})
	}
	return out
}
