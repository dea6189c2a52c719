package entities

import (
	"encoding/json"
	"time"
)

// EditField is the utterance field a transcript edit targets
type EditField string

const (
	EditFieldText    EditField = "text"
	EditFieldSpeaker EditField = "speaker"
)

// EditAction is the operation of a structured edit
type EditAction string

const (
	EditActionAdd    EditAction = "add"
	EditActionRemove EditAction = "remove"
	EditActionModify EditAction = "modify"
)

// TranscriptEdit is an append-only human correction of one utterance
type TranscriptEdit struct {
	ID          string    `json:"edit_id"`
	UtteranceID string    `json:"utterance_id"`
	Field       EditField `json:"field"`
	OldValue    string    `json:"old_value"`
	NewValue    string    `json:"new_value"`
	Author      string    `json:"edited_by"`
	Timestamp   time.Time `json:"edited_at"`
}

// StructuredEdit is an append-only human correction of one clinical section
type StructuredEdit struct {
	ID        string     `json:"edit_id"`
	Section   Section    `json:"section"`
	Action    EditAction `json:"action"`
	Value     Entry      `json:"value"`
	Author    string     `json:"edited_by"`
	Timestamp time.Time  `json:"edited_at"`
}

// EnrichmentDraft records one completed extraction call. Drafts are kept for
// audit and never mutated.
type EnrichmentDraft struct {
	ID                string          `json:"draft_id"`
	CreatedAt         time.Time       `json:"created_at"`
	InputUtteranceIDs []string        `json:"input_utterance_ids"`
	CandidatePatch    json.RawMessage `json:"candidate_patch"`
	SourceModel       string          `json:"model"`
}
