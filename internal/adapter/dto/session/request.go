package session

import (
	"time"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// TranscriptEditRequest represents a correction of one utterance
type TranscriptEditRequest struct {
	EditID      string     `json:"edit_id,omitempty"`
	UtteranceID string     `json:"utterance_id" validate:"required"`
	Field       string     `json:"field" validate:"required,oneof=text speaker"`
	OldValue    string     `json:"old_value"`
	NewValue    string     `json:"new_value"`
	EditedBy    string     `json:"edited_by" validate:"max=255"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}

// ToEntity converts the request to a transcript edit
func (r TranscriptEditRequest) ToEntity() entities.TranscriptEdit {
	e := entities.TranscriptEdit{
		ID:          r.EditID,
		UtteranceID: r.UtteranceID,
		Field:       entities.EditField(r.Field),
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Author:      r.EditedBy,
	}
	if r.EditedAt != nil {
		e.Timestamp = r.EditedAt.UTC()
	}
	return e
}

// StructuredEditRequest represents a correction of one clinical section
type StructuredEditRequest struct {
	EditID   string         `json:"edit_id,omitempty"`
	Section  string         `json:"section" validate:"required,section"`
	Action   string         `json:"action" validate:"required,oneof=add remove modify"`
	Value    entities.Entry `json:"value"`
	EditedBy string         `json:"edited_by" validate:"max=255"`
	EditedAt *time.Time     `json:"edited_at,omitempty"`
}

// ToEntity converts the request to a structured edit
func (r StructuredEditRequest) ToEntity() entities.StructuredEdit {
	e := entities.StructuredEdit{
		ID:      r.EditID,
		Section: entities.Section(r.Section),
		Action:  entities.EditAction(r.Action),
		Value:   r.Value,
		Author:  r.EditedBy,
	}
	if r.EditedAt != nil {
		e.Timestamp = r.EditedAt.UTC()
	}
	return e
}

// FeedbackRequest represents a like/dislike on a session's output
type FeedbackRequest struct {
	Feedback string `json:"feedback" validate:"required,oneof=like dislike"`
}

// SuggestionsQuery represents query parameters for a direct index lookup
type SuggestionsQuery struct {
	Q string `query:"q" validate:"required,max=2000"`
	K int    `query:"k" validate:"omitempty,min=1,max=50"`
}
