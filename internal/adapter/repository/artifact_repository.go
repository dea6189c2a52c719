package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/pkg/jobcontext"
)

// ArtifactRepository stores finalized session outputs in postgres. One row
// per (session, kind); later writes overwrite earlier ones.
type ArtifactRepository struct {
	db         *gorm.DB
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *gorm.DB, logger *zap.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		db:     db,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(bo, 3)
		},
	}
}

// StoreTranscript stores a raw or corrected transcript
func (r *ArtifactRepository) StoreTranscript(ctx context.Context, sessionID string, kind entities.ArtifactKind, utterances []entities.Utterance) error {
	if kind != entities.ArtifactRawTranscript && kind != entities.ArtifactCorrectedTranscript {
		return fmt.Errorf("unsupported transcript kind %q", kind)
	}
	if utterances == nil {
		utterances = []entities.Utterance{}
	}
	return r.store(ctx, sessionID, kind, utterances)
}

// StoreStructuredState stores the final clinical record
func (r *ArtifactRepository) StoreStructuredState(ctx context.Context, sessionID string, state entities.ClinicalState) error {
	return r.store(ctx, sessionID, entities.ArtifactStructuredState, state)
}

// StoreMetadata stores the session summary
func (r *ArtifactRepository) StoreMetadata(ctx context.Context, sessionID string, meta entities.SessionMetadata) error {
	return r.store(ctx, sessionID, entities.ArtifactMetadata, meta)
}

// StoreDrafts stores the enrichment audit trail
func (r *ArtifactRepository) StoreDrafts(ctx context.Context, sessionID string, drafts []entities.EnrichmentDraft) error {
	if drafts == nil {
		drafts = []entities.EnrichmentDraft{}
	}
	return r.store(ctx, sessionID, entities.ArtifactDrafts, drafts)
}

// GetArtifact retrieves one artifact, or nil when it was never stored
func (r *ArtifactRepository) GetArtifact(ctx context.Context, sessionID string, kind entities.ArtifactKind) (*entities.SessionArtifact, error) {
	var artifact entities.SessionArtifact
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND kind = ?", sessionID, kind).
		First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

// StoreFeedback appends a like/dislike for a session
func (r *ArtifactRepository) StoreFeedback(ctx context.Context, feedback *entities.Feedback) error {
	if feedback == nil {
		return errors.New("feedback cannot be nil")
	}
	return r.db.WithContext(ctx).Create(feedback).Error
}

func (r *ArtifactRepository) store(ctx context.Context, sessionID string, kind entities.ArtifactKind, payload any) error {
	row, err := encodeArtifact(sessionID, kind, payload)
	if err != nil {
		return err
	}

	operation := func() error {
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "kind"}},
				DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
			}).
			Create(row).Error
		if err != nil && !jobcontext.IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("store %s for session %s: %w", kind, sessionID, err)
	}

	if r.logger != nil {
		r.logger.Debug("💾 Artifact stored",
			zap.String("session_id", sessionID),
			zap.String("kind", string(kind)),
			zap.Int("bytes", len(row.Payload)),
		)
	}
	return nil
}

func encodeArtifact(sessionID string, kind entities.ArtifactKind, payload any) (*entities.SessionArtifact, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return entities.NewSessionArtifact(sessionID, kind, b), nil
}
