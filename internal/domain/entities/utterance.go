package entities

import (
	"time"

	"github.com/google/uuid"
)

// Speaker is the conversational role an utterance is attributed to
type Speaker string

const (
	SpeakerPatient Speaker = "patient"
	SpeakerDoctor  Speaker = "doctor"
	SpeakerUnknown Speaker = "unknown"
)

// Valid reports whether the speaker is one of the known roles
func (s Speaker) Valid() bool {
	switch s {
	case SpeakerPatient, SpeakerDoctor, SpeakerUnknown:
		return true
	}
	return false
}

// Utterance is one transcribed speech segment. Index is its 1-based position
// in the transcript and never changes once assigned.
type Utterance struct {
	ID        string    `json:"utterance_id"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Speaker   Speaker   `json:"speaker"`
}

// NewUtterance creates an utterance with an unknown speaker
func NewUtterance(index int, text string, at time.Time) Utterance {
	return Utterance{
		ID:        uuid.New().String(),
		Index:     index,
		Timestamp: at.UTC(),
		Text:      text,
		Speaker:   SpeakerUnknown,
	}
}

// Entry converts the utterance to its clinical-record form
func (u Utterance) Entry() UtteranceEntry {
	return UtteranceEntry{
		Index:       u.Index,
		UtteranceID: u.ID,
		Speaker:     u.Speaker,
		Text:        u.Text,
		Timestamp:   u.Timestamp.Format(time.RFC3339Nano),
	}
}

// UtteranceIDs returns the ids of the given utterances in order
func UtteranceIDs(utterances []Utterance) []string {
	ids := make([]string, len(utterances))
	for i, u := range utterances {
		ids[i] = u.ID
	}
	return ids
}
