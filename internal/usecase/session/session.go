// Package session owns the live state of each consultation: the transcript,
// the human edit logs, the enrichment drafts and the clinical record derived
// from them, plus the scheduling that decides when to enrich.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// Data is the mutable part of a session. It may only be touched inside
// Session.View or Session.Update.
type Data struct {
	ID         string
	Date       string
	CreatedAt  time.Time
	Transcript []entities.Utterance
	Corrected  []entities.Utterance
	Edits      []entities.TranscriptEdit
	Structured []entities.StructuredEdit
	Drafts     []entities.EnrichmentDraft
	State      entities.ClinicalState
	Report     string
	ReportPath string
	Active     bool
	Finalizing bool
	Finalized  bool

	LastProcessedIndex int
	LastTranscriptAt   time.Time
	LastUpdateAt       time.Time

	// enrichment bookkeeping
	Attempts      int
	Failures      int
	LastCallOK    bool
	LastCallError string
	LastOutcome   Outcome
}

// Pending returns the utterances not yet handed to enrichment
func (d *Data) Pending() []entities.Utterance {
	if d.LastProcessedIndex >= len(d.Transcript) {
		return nil
	}
	return d.Transcript[d.LastProcessedIndex:]
}

// Session is one consultation. All reads and writes of its Data go through
// the state mutex; the flight mutex is held for the whole duration of an
// enrichment cycle so at most one runs per session.
type Session struct {
	id     string
	mu     sync.Mutex
	flight sync.Mutex
	data   Data

	timerMu sync.Mutex
	cancel  func()
	done    chan struct{}
}

func newSession(id string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		id: id,
		data: Data{
			ID:        id,
			Date:      now.Format("2006-01-02"),
			CreatedAt: now,
			State:     entities.NewClinicalState(),
			Active:    true,
		},
	}
}

// NewID returns a time-ordered session id such as 2025-01-02_10-04-05_123456
func NewID(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%06d", now.Format("2006-01-02_15-04-05"), now.Nanosecond()/int(time.Microsecond))
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// View runs fn with read access to the session data
func (s *Session) View(fn func(d *Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// Update runs fn with exclusive access to the session data
func (s *Session) Update(fn func(d *Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

// Active reports whether the session still accepts transcript events
func (s *Session) Active() bool {
	var active bool
	s.View(func(d *Data) { active = d.Active })
	return active
}

// AppendUtterance adds a transcribed segment. spokenAt is what the client
// reported and is kept on the utterance; the silence clock is reset from
// receivedAt, the server time the segment arrived.
func (s *Session) AppendUtterance(text string, spokenAt, receivedAt time.Time) (entities.Utterance, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entities.Utterance{}, fmt.Errorf("%w: empty utterance", ucerrors.ErrInvalidInput)
	}

	var u entities.Utterance
	err := s.Update(func(d *Data) error {
		if !d.Active {
			return ucerrors.ErrSessionInactive
		}
		u = entities.NewUtterance(len(d.Transcript)+1, text, spokenAt)
		d.Transcript = append(d.Transcript, u)
		d.LastTranscriptAt = receivedAt
		return nil
	})
	return u, err
}

// AppendTranscriptEdit logs a transcript correction
func (s *Session) AppendTranscriptEdit(e entities.TranscriptEdit, now time.Time) (entities.TranscriptEdit, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	err := s.Update(func(d *Data) error {
		if d.Finalized {
			return ucerrors.ErrSessionInactive
		}
		d.Edits = append(d.Edits, e)
		return nil
	})
	return e, err
}

// AppendStructuredEdit logs a clinical record correction
func (s *Session) AppendStructuredEdit(e entities.StructuredEdit, now time.Time) (entities.StructuredEdit, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	err := s.Update(func(d *Data) error {
		if d.Finalized {
			return ucerrors.ErrSessionInactive
		}
		d.Structured = append(d.Structured, e)
		return nil
	})
	return e, err
}

// Snapshot is a consistent copy of a session's data
type Snapshot struct {
	ID                 string                     `json:"session_id"`
	Date               string                     `json:"session_date"`
	Active             bool                       `json:"active"`
	State              entities.ClinicalState     `json:"structured_state"`
	Transcript         []entities.Utterance       `json:"transcript"`
	TranscriptEdits    []entities.TranscriptEdit  `json:"transcript_edits"`
	StructuredEdits    []entities.StructuredEdit  `json:"structured_edits"`
	Drafts             []entities.EnrichmentDraft `json:"-"`
	Report             string                     `json:"clinical_report,omitempty"`
	Pending            int                        `json:"pending"`
	LastProcessedIndex int                        `json:"last_processed_index"`
	LastCallOK         bool                       `json:"last_call_ok"`
	Attempts           int                        `json:"enrichment_attempts"`
	Failures           int                        `json:"enrichment_failures"`
}

// Snapshot copies the session data
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.View(func(d *Data) {
		snap = Snapshot{
			ID:                 d.ID,
			Date:               d.Date,
			Active:             d.Active,
			State:              d.State.Clone(),
			Transcript:         append([]entities.Utterance{}, d.Transcript...),
			TranscriptEdits:    append([]entities.TranscriptEdit{}, d.Edits...),
			StructuredEdits:    append([]entities.StructuredEdit{}, d.Structured...),
			Drafts:             append([]entities.EnrichmentDraft{}, d.Drafts...),
			Report:             d.Report,
			Pending:            len(d.Pending()),
			LastProcessedIndex: d.LastProcessedIndex,
			LastCallOK:         d.LastCallOK,
			Attempts:           d.Attempts,
			Failures:           d.Failures,
		}
	})
	return snap
}

// deactivate flips the session to inactive. It returns false when the
// session was already inactive.
func (s *Session) deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.data.Active
	s.data.Active = false
	return was
}

// startTimer records the cancel func and done channel of the timer task
func (s *Session) startTimer(cancel func()) chan struct{} {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.cancel = cancel
	s.done = make(chan struct{})
	return s.done
}

// stopTimer cancels the timer task and waits for it to return
func (s *Session) stopTimer() {
	s.timerMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.timerMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
