package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/internal/domain/repositories"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/reconcile"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/trust"
	"github.com/johnquangdev/clinical-scribe/pkg/jobcontext"
	"github.com/johnquangdev/clinical-scribe/pkg/workerpool"
)

// Suggester indexes finalized consultations and looks up similar past ones
type Suggester interface {
	Index(ctx context.Context, sessionID string, state entities.ClinicalState) error
	Suggest(ctx context.Context, state entities.ClinicalState) (entities.Suggestions, error)
}

// DatasetExporter appends a finalized consultation to the training dataset
type DatasetExporter interface {
	Export(ctx context.Context, sessionID string, state entities.ClinicalState) error
}

// Result is everything produced by finalizing a session
type Result struct {
	SessionID   string
	SessionDate string
	State       entities.ClinicalState
	Transcript  []entities.Utterance
	Report      string
	ReportPath  string
	Decision    trust.Decision
	Suggestions entities.Suggestions
}

// FinalizerDeps are the collaborators of a Finalizer. Any of the writers may
// be nil, in which case that output is skipped.
type FinalizerDeps struct {
	Scheduler *Scheduler
	Extractor Extractor
	Artifacts repositories.ArtifactRepository
	Reports   repositories.ReportStore
	Suggester Suggester
	Dataset   DatasetExporter
	Pool      *workerpool.Pool
	Timeout   time.Duration
}

// Finalizer runs the terminal sequence of a session: flush pending
// enrichment, apply human edits, generate the report, gate it and persist.
type Finalizer struct {
	scheduler  *Scheduler
	extractor  Extractor
	artifacts  repositories.ArtifactRepository
	reports    repositories.ReportStore
	suggester  Suggester
	dataset    DatasetExporter
	pool       *workerpool.Pool
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

// NewFinalizer creates a finalizer
func NewFinalizer(deps FinalizerDeps, logger *zap.Logger) *Finalizer {
	pool := deps.Pool
	if pool == nil {
		pool = workerpool.New(1, logger)
	}
	return &Finalizer{
		scheduler: deps.Scheduler,
		extractor: deps.Extractor,
		artifacts: deps.Artifacts,
		reports:   deps.Reports,
		suggester: deps.Suggester,
		dataset:   deps.Dataset,
		pool:      pool,
		timeout:   deps.Timeout,
		logger:    logger,
		now:       time.Now,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.MaxElapsedTime = time.Minute
			return backoff.WithMaxRetries(bo, 3)
		},
	}
}

// WithBackOff replaces the retry policy used for report generation
func (f *Finalizer) WithBackOff(newBackOff func() backoff.BackOff) *Finalizer {
	f.newBackOff = newBackOff
	return f
}

// WithClock replaces the time source
func (f *Finalizer) WithClock(now func() time.Time) *Finalizer {
	f.now = now
	return f
}

// Finalize runs once per session. A second call returns ErrSessionInactive.
func (f *Finalizer) Finalize(ctx context.Context, sess *Session) (*Result, error) {
	if !f.claim(sess) {
		return nil, fmt.Errorf("%w: %s is already finalizing", ucerrors.ErrSessionInactive, sess.ID())
	}
	sess.deactivate()
	sess.stopTimer()

	if f.logger != nil {
		f.logger.Info("🏁 Finalizing session", zap.String("session_id", sess.ID()))
	}

	if f.scheduler != nil {
		// failures are logged by the scheduler and show up as LastCallOK=false
		_, _ = f.scheduler.Evaluate(ctx, sess, true)
	}

	var (
		res        = &Result{SessionID: sess.ID()}
		raw        []entities.Utterance
		drafts     []entities.EnrichmentDraft
		lastCallOK bool
	)
	_ = sess.Update(func(d *Data) error {
		corrected, final := reconciled(d)
		d.Corrected = corrected
		d.State = final
		d.Finalized = true

		res.SessionDate = d.Date
		res.State = final.Clone()
		res.Transcript = append([]entities.Utterance(nil), corrected...)
		raw = append([]entities.Utterance(nil), d.Transcript...)
		drafts = append([]entities.EnrichmentDraft(nil), d.Drafts...)
		lastCallOK = d.LastCallOK
		return nil
	})

	report, reportErr := f.generateReport(ctx, sess.ID(), res.State)
	if reportErr != nil && f.logger != nil {
		f.logger.Error("❌ Report generation failed",
			zap.String("session_id", sess.ID()),
			zap.Error(reportErr),
		)
	}
	res.Report = report

	res.Decision = trust.Evaluate(trust.Input{
		CallSucceeded: lastCallOK && reportErr == nil,
		Transcript:    res.Transcript,
		Symptoms:      res.State.Symptoms,
		Medications:   res.State.Medications,
	})
	if f.logger != nil {
		f.logger.Info("🛡️ Trust decision",
			zap.String("session_id", sess.ID()),
			zap.String("tier", string(res.Decision.Tier)),
			zap.Strings("reasons", res.Decision.Reasons),
		)
	}

	res.ReportPath = f.storeReport(ctx, sess.ID(), res.SessionDate, res.State, report)
	_ = sess.Update(func(d *Data) error {
		d.Report = report
		d.ReportPath = res.ReportPath
		return nil
	})

	f.storeArtifacts(ctx, res, raw, drafts)
	res.Suggestions = f.suggest(ctx, sess.ID(), res.State)

	if f.dataset != nil {
		if err := f.dataset.Export(ctx, sess.ID(), res.State); err != nil && f.logger != nil {
			f.logger.Error("❌ Dataset export failed", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}

	return res, nil
}

// Regenerate produces a fresh report from the session's current state with
// the logged edits applied to a copy. The live session is not reconciled.
func (f *Finalizer) Regenerate(ctx context.Context, sess *Session) (string, string, error) {
	var (
		state entities.ClinicalState
		date  string
	)
	sess.View(func(d *Data) {
		_, state = reconciled(d)
		date = d.Date
	})

	report, err := f.generateReport(ctx, sess.ID(), state)
	if err != nil {
		return "", "", err
	}
	path := f.storeReport(ctx, sess.ID(), date, state, report)

	_ = sess.Update(func(d *Data) error {
		d.Report = report
		d.ReportPath = path
		return nil
	})
	return report, path, nil
}

// Suggest looks up similar consultations for the session's current state
func (f *Finalizer) Suggest(ctx context.Context, sess *Session) entities.Suggestions {
	var state entities.ClinicalState
	sess.View(func(d *Data) { state = d.State.Clone() })
	return f.lookup(ctx, sess.ID(), state)
}

// claim marks the session as finalizing. Only the first caller wins.
func (f *Finalizer) claim(sess *Session) bool {
	claimed := false
	_ = sess.Update(func(d *Data) error {
		if d.Finalizing {
			return nil
		}
		d.Finalizing = true
		claimed = true
		return nil
	})
	return claimed
}

// reconciled applies machine speaker labels, then transcript edits, rebuilds
// the utterances section from the corrected transcript and finally applies
// structured edits. d must be held under the state region.
func reconciled(d *Data) ([]entities.Utterance, entities.ClinicalState) {
	corrected := reconcile.ApplySpeakerLabels(d.Transcript, d.State.Utterances)
	corrected = reconcile.ApplyTranscriptEdits(corrected, d.Edits)
	final := reconcile.RebuildUtterances(d.State, corrected)
	final = reconcile.ApplyStructuredEdits(final, d.Structured)
	return corrected, final
}

func (f *Finalizer) generateReport(ctx context.Context, sessionID string, state entities.ClinicalState) (string, error) {
	if f.extractor == nil {
		return "", ucerrors.ErrReportFailed
	}

	var report string
	operation := func() error {
		err := f.pool.Do(ctx, func(ctx context.Context) error {
			jobCtx, cancel := jobcontext.JobBegin(ctx, sessionID, jobcontext.JobReport, f.timeout)
			defer cancel()
			return jobcontext.Run(jobCtx, func(jobCtx context.Context) error {
				r, err := f.extractor.ExtractReport(jobCtx, state)
				if err != nil {
					return err
				}
				report = r
				return nil
			})
		})
		if err != nil && !jobcontext.IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(f.newBackOff(), ctx)); err != nil {
		return "", fmt.Errorf("%w: %w", ucerrors.ErrReportFailed, err)
	}
	return report, nil
}

func (f *Finalizer) storeReport(ctx context.Context, sessionID, date string, state entities.ClinicalState, report string) string {
	if f.reports == nil {
		return ""
	}
	var path string
	err := f.pool.Do(ctx, func(ctx context.Context) error {
		p, err := f.reports.StoreReport(ctx, sessionID, date, state, report)
		path = p
		return err
	})
	if err != nil {
		if f.logger != nil {
			f.logger.Error("❌ Failed to store report", zap.String("session_id", sessionID), zap.Error(err))
		}
		return ""
	}
	return path
}

func (f *Finalizer) storeArtifacts(ctx context.Context, res *Result, raw []entities.Utterance, drafts []entities.EnrichmentDraft) {
	if f.artifacts == nil {
		return
	}

	model := ""
	if f.extractor != nil {
		model = f.extractor.Model()
	}
	meta := entities.SessionMetadata{
		SessionID:      res.SessionID,
		SessionDate:    res.SessionDate,
		Timestamp:      f.now().UTC(),
		Model:          model,
		Patient:        res.State.Patient.Clone(),
		TrustTier:      string(res.Decision.Tier),
		TrustReasons:   res.Decision.Reasons,
		UtteranceCount: len(res.Transcript),
		DraftCount:     len(drafts),
		ReportPath:     res.ReportPath,
	}

	writes := map[string]func(context.Context) error{
		string(entities.ArtifactRawTranscript): func(ctx context.Context) error {
			return f.artifacts.StoreTranscript(ctx, res.SessionID, entities.ArtifactRawTranscript, raw)
		},
		string(entities.ArtifactCorrectedTranscript): func(ctx context.Context) error {
			return f.artifacts.StoreTranscript(ctx, res.SessionID, entities.ArtifactCorrectedTranscript, res.Transcript)
		},
		string(entities.ArtifactStructuredState): func(ctx context.Context) error {
			return f.artifacts.StoreStructuredState(ctx, res.SessionID, res.State)
		},
		string(entities.ArtifactDrafts): func(ctx context.Context) error {
			return f.artifacts.StoreDrafts(ctx, res.SessionID, drafts)
		},
		string(entities.ArtifactMetadata): func(ctx context.Context) error {
			return f.artifacts.StoreMetadata(ctx, res.SessionID, meta)
		},
	}

	var g errgroup.Group
	for name, write := range writes {
		name, write := name, write
		g.Go(func() error {
			jobCtx, cancel := jobcontext.JobBegin(ctx, res.SessionID, jobcontext.JobArtifacts, f.timeout)
			defer cancel()
			if err := jobcontext.Run(jobCtx, write); err != nil {
				if f.logger != nil {
					f.logger.Error("❌ Failed to store artifact",
						zap.String("session_id", res.SessionID),
						zap.String("artifact", name),
						zap.Error(err),
					)
				}
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && f.logger != nil {
		f.logger.Warn("⚠️ Some session artifacts were not stored", zap.String("session_id", res.SessionID))
	}
}

func (f *Finalizer) suggest(ctx context.Context, sessionID string, state entities.ClinicalState) entities.Suggestions {
	if f.suggester == nil {
		return entities.EmptySuggestions()
	}
	if err := f.suggester.Index(ctx, sessionID, state); err != nil && f.logger != nil {
		f.logger.Error("❌ Failed to index consultation", zap.String("session_id", sessionID), zap.Error(err))
	}
	return f.lookup(ctx, sessionID, state)
}

func (f *Finalizer) lookup(ctx context.Context, sessionID string, state entities.ClinicalState) entities.Suggestions {
	if f.suggester == nil {
		return entities.EmptySuggestions()
	}
	out, err := f.suggester.Suggest(ctx, state)
	if err != nil {
		if f.logger != nil && !errors.Is(err, context.Canceled) {
			f.logger.Warn("⚠️ Suggestion lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return entities.EmptySuggestions()
	}
	return out
}
