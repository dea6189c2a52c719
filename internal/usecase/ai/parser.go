package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// Parser handles parsing and validation of Groq responses
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParsePatch turns extraction output into a candidate patch. Anything that
// is not a JSON object is reported as ErrEnrichmentMalformed.
func (p *Parser) ParsePatch(content string) (entities.Patch, error) {
	content = extractJSON(content)
	if content == "" {
		return entities.Patch{}, fmt.Errorf("%w: empty response", ucerrors.ErrEnrichmentMalformed)
	}

	patch, err := entities.ParsePatch([]byte(content))
	if err != nil {
		return entities.Patch{}, fmt.Errorf("%w: %w", ucerrors.ErrEnrichmentMalformed, err)
	}
	return patch, nil
}

type reportEnvelope struct {
	ClinicalReport *string `json:"clinical_report"`
}

// ParseReport extracts the clinical_report field from report output
func (p *Parser) ParseReport(content string) (string, error) {
	content = extractJSON(content)

	var env reportEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return "", fmt.Errorf("%w: %w", ucerrors.ErrEnrichmentMalformed, err)
	}
	if env.ClinicalReport == nil {
		return "", fmt.Errorf("%w: missing clinical_report", ucerrors.ErrEnrichmentMalformed)
	}

	report := strings.TrimSpace(*env.ClinicalReport)
	if report == "" {
		return "", fmt.Errorf("%w: empty clinical_report", ucerrors.ErrEnrichmentMalformed)
	}
	return report, nil
}

// extractJSON extracts JSON content from markdown code blocks or plain text
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		if len(content) >= 4 && strings.EqualFold(content[:4], "json") {
			content = content[4:]
		}
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
	}

	return strings.TrimSpace(content)
}
