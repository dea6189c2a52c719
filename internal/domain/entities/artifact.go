package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ArtifactKind identifies which durable artifact a row holds
type ArtifactKind string

const (
	ArtifactRawTranscript       ArtifactKind = "raw_transcript"
	ArtifactCorrectedTranscript ArtifactKind = "corrected_transcript"
	ArtifactStructuredState     ArtifactKind = "structured_state"
	ArtifactMetadata            ArtifactKind = "metadata"
	ArtifactDrafts              ArtifactKind = "enrichment_drafts"
)

// SessionArtifact is one durable output of a finalized session. There is at
// most one row per (session, kind); writes overwrite.
type SessionArtifact struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID string         `json:"session_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_session_artifacts_session_kind"`
	Kind      ArtifactKind   `json:"kind" gorm:"type:varchar(50);not null;uniqueIndex:idx_session_artifacts_session_kind"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (SessionArtifact) TableName() string {
	return "session_artifacts"
}

// NewSessionArtifact creates an artifact row
func NewSessionArtifact(sessionID string, kind ArtifactKind, payload []byte) *SessionArtifact {
	return &SessionArtifact{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// SessionMetadata summarizes a finalized session
type SessionMetadata struct {
	SessionID      string       `json:"session_id"`
	SessionDate    string       `json:"session_date"`
	Timestamp      time.Time    `json:"timestamp"`
	Model          string       `json:"model"`
	Patient        Demographics `json:"patient"`
	TrustTier      string       `json:"trust_tier"`
	TrustReasons   []string     `json:"trust_reasons"`
	UtteranceCount int          `json:"utterance_count"`
	DraftCount     int          `json:"draft_count"`
	ReportPath     string       `json:"report_path,omitempty"`
}

// FeedbackRating is a clinician's verdict on a generated record
type FeedbackRating string

const (
	FeedbackLike    FeedbackRating = "like"
	FeedbackDislike FeedbackRating = "dislike"
)

// Feedback stores a like/dislike on a session's output
type Feedback struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID string         `json:"session_id" gorm:"type:varchar(64);not null;index"`
	Rating    FeedbackRating `json:"rating" gorm:"type:varchar(20);not null"`
	Source    string         `json:"source" gorm:"type:varchar(50)"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Feedback) TableName() string {
	return "session_feedback"
}

// NewFeedback creates a feedback row
func NewFeedback(sessionID string, rating FeedbackRating) *Feedback {
	return &Feedback{
		ID:        uuid.New(),
		SessionID: sessionID,
		Rating:    rating,
		Source:    "ui_feedback_v1",
		CreatedAt: time.Now(),
	}
}
