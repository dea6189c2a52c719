package session

import (
	"context"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
	"github.com/johnquangdev/clinical-scribe/pkg/workerpool"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeExtractor struct {
	mu          sync.Mutex
	patch       string
	err         error
	report      string
	reportErr   error
	calls       int
	reportCalls int
	batches     [][]entities.Utterance
	started     chan struct{}
	release     chan struct{}
	waitCtx     bool
}

func (f *fakeExtractor) ExtractIncremental(ctx context.Context, _ entities.ClinicalState, batch []entities.Utterance) (entities.Patch, error) {
	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, batch)
	patch, err, started, release, waitCtx := f.patch, f.err, f.started, f.release, f.waitCtx
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if waitCtx {
		<-ctx.Done()
		return entities.Patch{}, ctx.Err()
	}
	if err != nil {
		return entities.Patch{}, err
	}
	if patch == "" {
		patch = "{}"
	}
	return entities.ParsePatch([]byte(patch))
}

func (f *fakeExtractor) ExtractReport(context.Context, entities.ClinicalState) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls++
	return f.report, f.reportErr
}

func (f *fakeExtractor) Model() string { return "fake-model" }

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExtractor) set(fn func(f *fakeExtractor)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func testSchedulerConfig() config.SchedulerConfig {
	cfg := config.DefaultScheduler()
	cfg.Tick = 5 * time.Millisecond
	cfg.ExtractionTimeout = time.Second
	cfg.WorkerCount = 2
	return cfg
}

func newTestScheduler(ex Extractor, clock *fakeClock, cfg config.SchedulerConfig) *Scheduler {
	return NewScheduler(ex, workerpool.New(cfg.WorkerCount, zap.NewNop()), cfg, zap.NewNop()).WithClock(clock.Now)
}

func newTestSession(t *testing.T, id string) *Session {
	t.Helper()
	s, err := NewRegistry().Create(id)
	require.NoError(t, err)
	return s
}

func say(t *testing.T, s *Session, clock *fakeClock, texts ...string) {
	t.Helper()
	for _, text := range texts {
		_, err := s.AppendUtterance(text, clock.Now(), clock.Now())
		require.NoError(t, err)
	}
}

func noRetry() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
}
