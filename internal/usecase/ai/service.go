// Package ai adapts the Groq chat-completions API to the session extractor:
// incremental clinical extraction and final report generation.
package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/pkg/jobcontext"
)

// Completer is the chat-completion surface the extractor needs. It is
// satisfied by *pkgai.GroqClient.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, jsonOutput bool) (string, error)
	Model() string
}

// Extractor calls the language model for incremental updates and reports
type Extractor struct {
	client Completer
	parser *Parser
	logger *zap.Logger
}

// NewExtractor constructs a new extractor
func NewExtractor(client Completer, logger *zap.Logger) *Extractor {
	return &Extractor{
		client: client,
		parser: NewParser(),
		logger: logger,
	}
}

// Model returns the model the extractor talks to
func (e *Extractor) Model() string {
	return e.client.Model()
}

// ExtractIncremental asks the model for a candidate patch covering batch.
// The patch is returned unmerged.
func (e *Extractor) ExtractIncremental(ctx context.Context, current entities.ClinicalState, batch []entities.Utterance) (entities.Patch, error) {
	prompt, err := buildIncrementalPrompt(current, batch)
	if err != nil {
		return entities.Patch{}, err
	}

	start := time.Now()
	content, err := e.client.Complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		return entities.Patch{}, fmt.Errorf("extraction call: %w", err)
	}

	patch, err := e.parser.ParsePatch(content)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("⚠️ Extraction output rejected",
				e.jobFields(ctx, zap.Int("content_length", len(content)), zap.Error(err))...,
			)
		}
		return entities.Patch{}, err
	}

	if e.logger != nil {
		e.logger.Debug("🧠 Extraction completed",
			e.jobFields(ctx,
				zap.Int("utterance_count", len(batch)),
				zap.Int("sections", len(patch.Sections)),
				zap.Duration("duration", time.Since(start)),
			)...,
		)
	}
	return patch, nil
}

// ExtractReport renders the final clinical note from the reconciled state
func (e *Extractor) ExtractReport(ctx context.Context, final entities.ClinicalState) (string, error) {
	prompt, err := buildReportPrompt(final)
	if err != nil {
		return "", err
	}

	content, err := e.client.Complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		return "", fmt.Errorf("report call: %w", err)
	}

	report, err := e.parser.ParseReport(content)
	if err != nil {
		return "", err
	}

	if e.logger != nil {
		e.logger.Info("📝 Clinical report generated", e.jobFields(ctx, zap.Int("report_length", len(report)))...)
	}
	return report, nil
}

func (e *Extractor) jobFields(ctx context.Context, fields ...zap.Field) []zap.Field {
	meta := jobcontext.GetJobMetadata(ctx)
	out := make([]zap.Field, 0, len(fields)+2)
	if meta.SessionID != "" {
		out = append(out, zap.String("session_id", meta.SessionID))
	}
	if meta.JobType != "" {
		out = append(out, zap.String("job_type", meta.JobType))
	}
	return append(out, fields...)
}
