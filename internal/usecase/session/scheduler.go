package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/merge"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
	"github.com/johnquangdev/clinical-scribe/pkg/jobcontext"
	"github.com/johnquangdev/clinical-scribe/pkg/workerpool"
)

// Extractor is the external extraction service
type Extractor interface {
	ExtractIncremental(ctx context.Context, current entities.ClinicalState, batch []entities.Utterance) (entities.Patch, error)
	ExtractReport(ctx context.Context, final entities.ClinicalState) (string, error)
	Model() string
}

// Outcome is the result of one scheduler evaluation
type Outcome string

const (
	OutcomeInFlight       Outcome = "in_flight"
	OutcomeNothingPending Outcome = "nothing_pending"
	OutcomeNotDue         Outcome = "not_due"
	OutcomeInactive       Outcome = "inactive"
	OutcomeIrrelevant     Outcome = "irrelevant"
	OutcomeFailed         Outcome = "failed"
	OutcomeUpdated        Outcome = "updated"
)

// Scheduler decides when a session's pending utterances are sent for
// extraction and merges the result back.
type Scheduler struct {
	extractor Extractor
	pool      *workerpool.Pool
	cfg       config.SchedulerConfig
	logger    *zap.Logger
	now       func() time.Time
	check     func(prev, next entities.ClinicalState) error
}

// NewScheduler creates a scheduler
func NewScheduler(extractor Extractor, pool *workerpool.Pool, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if pool == nil {
		pool = workerpool.New(cfg.WorkerCount, logger)
	}
	return &Scheduler{
		extractor: extractor,
		pool:      pool,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		check:     merge.CheckInvariants,
	}
}

// WithClock replaces the time source
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Evaluate runs one scheduling cycle for sess.
//
// Without force the batch must be large enough or the conversation silent
// long enough, the minimum interval since the last successful update must
// have passed, and no other cycle may be running. With force those gates are
// skipped, but the call still waits for a running cycle to finish.
//
// Extraction failures leave the clinical state untouched and the batch
// pending; they are returned as *errors.EnrichmentError with OutcomeFailed.
func (s *Scheduler) Evaluate(ctx context.Context, sess *Session, force bool) (Outcome, error) {
	if force {
		sess.flight.Lock()
	} else if !sess.flight.TryLock() {
		return OutcomeInFlight, nil
	}
	defer sess.flight.Unlock()

	var (
		outcome Outcome
		batch   []entities.Utterance
		current entities.ClinicalState
	)
	now := s.now()
	_ = sess.Update(func(d *Data) error {
		if !force && !d.Active {
			outcome = OutcomeInactive
			return nil
		}
		pending := d.Pending()
		if len(pending) == 0 {
			outcome = OutcomeNothingPending
			return nil
		}
		if !force {
			silent := !d.LastTranscriptAt.IsZero() && now.Sub(d.LastTranscriptAt) >= s.cfg.SilenceThreshold
			if len(pending) < s.cfg.MinUtterances && !silent {
				outcome = OutcomeNotDue
				return nil
			}
			if !d.LastUpdateAt.IsZero() && now.Sub(d.LastUpdateAt) < s.cfg.MinUpdateInterval {
				outcome = OutcomeNotDue
				return nil
			}
			if s.cfg.RelevanceFilter && !IsRelevant(pending) {
				d.LastProcessedIndex = pending[len(pending)-1].Index
				outcome = OutcomeIrrelevant
				d.LastOutcome = outcome
				return nil
			}
		}
		batch = append([]entities.Utterance(nil), pending...)
		current = d.State.Clone()
		d.Attempts++
		return nil
	})
	if outcome != "" {
		if outcome == OutcomeIrrelevant && s.logger != nil {
			s.logger.Debug("⏭️ Skipped batch without clinical content",
				zap.String("session_id", sess.ID()),
			)
		}
		return outcome, nil
	}

	start := s.now()
	patch, err := s.extract(ctx, sess.ID(), current, batch)
	if err != nil {
		return s.fail(sess, err)
	}

	draft := entities.EnrichmentDraft{
		ID:                uuid.New().String(),
		CreatedAt:         s.now().UTC(),
		InputUtteranceIDs: entities.UtteranceIDs(batch),
		CandidatePatch:    append(json.RawMessage(nil), patch.Raw...),
		SourceModel:       s.extractor.Model(),
	}

	var report merge.Report
	err = sess.Update(func(d *Data) error {
		seeded := merge.SeedUtterances(d.State, batch)
		next, r := merge.Apply(seeded, patch)
		if err := s.check(d.State, next); err != nil {
			return err
		}
		d.Drafts = append(d.Drafts, draft)
		d.State = next
		d.LastProcessedIndex = batch[len(batch)-1].Index
		d.LastUpdateAt = s.now()
		d.LastCallOK = true
		d.LastCallError = ""
		d.LastOutcome = OutcomeUpdated
		report = r
		return nil
	})
	if err != nil {
		return s.fail(sess, err)
	}

	if s.logger != nil && !report.Changed() {
		s.logger.Debug("🟰 Enrichment returned no changes",
			zap.String("session_id", sess.ID()),
			zap.Int("utterance_count", len(batch)),
		)
	} else if s.logger != nil {
		s.logger.Info("✅ Clinical state updated",
			zap.String("session_id", sess.ID()),
			zap.Int("utterance_count", len(batch)),
			zap.Bool("forced", force),
			zap.Any("replaced", report.Replaced),
			zap.Any("skipped", report.Skipped),
			zap.Int("speaker_updates", report.SpeakerUpdates),
			zap.Duration("duration", s.now().Sub(start)),
		)
	}
	return OutcomeUpdated, nil
}

func (s *Scheduler) extract(ctx context.Context, sessionID string, current entities.ClinicalState, batch []entities.Utterance) (entities.Patch, error) {
	var patch entities.Patch
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		jobCtx, cancel := jobcontext.JobBegin(ctx, sessionID, jobcontext.JobExtraction, s.cfg.ExtractionTimeout)
		defer cancel()

		return jobcontext.Run(jobCtx, func(jobCtx context.Context) error {
			p, err := s.extractor.ExtractIncremental(jobCtx, current, batch)
			if err != nil {
				return err
			}
			patch = p
			return nil
		})
	})
	return patch, err
}

func (s *Scheduler) fail(sess *Session, err error) (Outcome, error) {
	enrichErr := ucerrors.NewEnrichmentError(sess.ID(), err)
	_ = sess.Update(func(d *Data) error {
		d.Failures++
		d.LastCallOK = false
		d.LastCallError = enrichErr.Error()
		d.LastOutcome = OutcomeFailed
		return nil
	})

	if s.logger != nil {
		s.logger.Warn("⚠️ Enrichment failed, batch stays pending",
			zap.String("session_id", sess.ID()),
			zap.String("kind", enrichErr.Kind.Error()),
			zap.Error(err),
		)
	}
	return OutcomeFailed, enrichErr
}

// Run evaluates sess every tick until ctx is cancelled or the session goes
// inactive. A cycle that has started is never aborted by cancellation.
func (s *Scheduler) Run(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// failures are logged inside Evaluate
			if outcome, _ := s.Evaluate(context.WithoutCancel(ctx), sess, false); outcome == OutcomeInactive {
				return
			}
		}
	}
}
