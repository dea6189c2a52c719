package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// Service is the entry point for everything that touches live sessions:
// the websocket event loop, the edit endpoints and regeneration.
type Service struct {
	registry  *Registry
	scheduler *Scheduler
	finalizer *Finalizer
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a session service
func NewService(registry *Registry, scheduler *Scheduler, finalizer *Finalizer, logger *zap.Logger) *Service {
	return &Service{
		registry:  registry,
		scheduler: scheduler,
		finalizer: finalizer,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start registers a new session and launches its scheduling timer
func (s *Service) Start(id string) (*Session, error) {
	sess, err := s.registry.Create(id)
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := sess.startTimer(cancel)
		go func() {
			defer close(done)
			s.scheduler.Run(ctx, sess)
		}()
	}

	if s.logger != nil {
		s.logger.Info("🎙️ Session started", zap.String("session_id", id))
	}
	return sess, nil
}

// Get returns a live session
func (s *Service) Get(id string) (*Session, error) {
	return s.registry.Get(id)
}

// AddTranscript appends a final transcript segment to the session
func (s *Service) AddTranscript(id, text string, at time.Time) (entities.Utterance, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return entities.Utterance{}, err
	}
	received := s.now()
	if at.IsZero() {
		at = received
	}
	return sess.AppendUtterance(text, at.UTC(), received)
}

// AddTranscriptEdit logs a transcript correction for a live session
func (s *Service) AddTranscriptEdit(id string, edit entities.TranscriptEdit) (entities.TranscriptEdit, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return entities.TranscriptEdit{}, err
	}
	return sess.AppendTranscriptEdit(edit, s.now())
}

// AddStructuredEdit logs a clinical record correction for a live session
func (s *Service) AddStructuredEdit(id string, edit entities.StructuredEdit) (entities.StructuredEdit, error) {
	if !edit.Section.Valid() {
		return entities.StructuredEdit{}, fmt.Errorf("%w: unknown section %q", ucerrors.ErrInvalidInput, edit.Section)
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return entities.StructuredEdit{}, err
	}
	return sess.AppendStructuredEdit(edit, s.now())
}

// Snapshot returns a copy of a live session
func (s *Service) Snapshot(id string) (Snapshot, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Regenerate produces and stores a fresh report for a live session
func (s *Service) Regenerate(ctx context.Context, id string) (string, string, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return "", "", err
	}
	return s.finalizer.Regenerate(ctx, sess)
}

// Suggestions looks up similar past consultations for a live session
func (s *Service) Suggestions(ctx context.Context, id string) (entities.Suggestions, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return entities.Suggestions{}, err
	}
	return s.finalizer.Suggest(ctx, sess), nil
}

// Finalize runs the terminal sequence and evicts the session
func (s *Service) Finalize(ctx context.Context, id string) (*Result, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}

	res, err := s.finalizer.Finalize(ctx, sess)
	if errors.Is(err, ucerrors.ErrSessionInactive) {
		return nil, err
	}
	s.registry.Remove(id)

	if s.logger != nil && err == nil {
		s.logger.Info("✅ Session finalized",
			zap.String("session_id", id),
			zap.String("tier", string(res.Decision.Tier)),
		)
	}
	return res, err
}

// Abandon stops a session without finalizing it, e.g. when the stream drops
func (s *Service) Abandon(id string) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return
	}
	var finalizing bool
	sess.View(func(d *Data) { finalizing = d.Finalizing })
	if finalizing {
		return
	}
	if sess.deactivate() && s.logger != nil {
		s.logger.Warn("🔌 Session abandoned", zap.String("session_id", id))
	}
	sess.stopTimer()
	s.registry.Remove(id)
}

// Shutdown abandons every live session
func (s *Service) Shutdown() {
	for _, id := range s.registry.IDs() {
		s.Abandon(id)
	}
}
