package repositories

import (
	"context"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// ArtifactRepository persists the durable outputs of a finalized session.
// Every write overwrites what was stored before for the same session and kind.
type ArtifactRepository interface {
	// Transcripts (raw or corrected)
	StoreTranscript(ctx context.Context, sessionID string, kind entities.ArtifactKind, utterances []entities.Utterance) error

	// Clinical record
	StoreStructuredState(ctx context.Context, sessionID string, state entities.ClinicalState) error
	StoreMetadata(ctx context.Context, sessionID string, meta entities.SessionMetadata) error
	StoreDrafts(ctx context.Context, sessionID string, drafts []entities.EnrichmentDraft) error

	// Lookups
	GetArtifact(ctx context.Context, sessionID string, kind entities.ArtifactKind) (*entities.SessionArtifact, error)

	// Feedback
	StoreFeedback(ctx context.Context, feedback *entities.Feedback) error
}

// ReportStore renders and stores the clinical report document and returns
// the path it was stored under.
type ReportStore interface {
	StoreReport(ctx context.Context, sessionID, sessionDate string, state entities.ClinicalState, report string) (string, error)
}

// SuggestionIndex is the similarity index of past consultations
type SuggestionIndex interface {
	Upsert(ctx context.Context, sessionID string, doc entities.SuggestionDocument) error
	Query(ctx context.Context, text string, k int) ([]entities.SuggestionMetadata, error)
}
