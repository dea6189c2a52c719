// Package dataset appends finalized consultations to a JSONL training set.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// SchemaVersion is written into every record
const SchemaVersion = "v1"

// Record is one line of the dataset
type Record struct {
	SchemaVersion string `json:"schema_version"`
	SessionID     string `json:"session_id"`
	Language      string `json:"language"`
	Input         Input  `json:"input"`
	Output        Output `json:"output"`
	Meta          Meta   `json:"meta"`
}

// Input is what the patient side provides
type Input struct {
	Symptoms       []string `json:"symptoms"`
	Investigations []string `json:"investigations"`
}

// Output is what the doctor decided
type Output struct {
	Diagnosis   []string `json:"diagnosis"`
	Tests       []string `json:"tests"`
	Medications []string `json:"medications"`
	Advice      []string `json:"advice"`
}

// Meta tags the record's origin
type Meta struct {
	Source string `json:"source"`
}

// JSONLWriter appends records to a single file. Safe for concurrent use.
type JSONLWriter struct {
	mu       sync.Mutex
	path     string
	language string
	logger   *zap.Logger
}

// NewJSONLWriter creates a writer for path, creating its directory
func NewJSONLWriter(path, language string, logger *zap.Logger) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dataset directory: %w", err)
	}
	if language == "" {
		language = "hi"
	}
	return &JSONLWriter{path: path, language: language, logger: logger}, nil
}

// NewRecord converts a finalized clinical record into a dataset line
func NewRecord(sessionID, language string, state entities.ClinicalState) Record {
	return Record{
		SchemaVersion: SchemaVersion,
		SessionID:     sessionID,
		Language:      language,
		Input: Input{
			Symptoms:       state.Symptoms.Labels(),
			Investigations: state.Investigations.Labels(),
		},
		Output: Output{
			Diagnosis:   state.Diagnosis.Labels(),
			Tests:       state.Tests.Labels(),
			Medications: state.Medications.Labels(),
			Advice:      state.Advice.Labels(),
		},
		Meta: Meta{Source: entities.SuggestionSource},
	}
}

// Export appends one record for the session
func (w *JSONLWriter) Export(ctx context.Context, sessionID string, state entities.ClinicalState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(NewRecord(sessionID, w.language, state))
	if err != nil {
		return fmt.Errorf("encode dataset record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append dataset record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}

	if w.logger != nil {
		w.logger.Debug("🗂️ Dataset record appended", zap.String("session_id", sessionID), zap.String("path", w.path))
	}
	return nil
}
