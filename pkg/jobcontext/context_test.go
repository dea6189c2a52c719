package jobcontext

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobBegin_Metadata(t *testing.T) {
	ctx, cancel := JobBegin(context.Background(), "sess-1", JobExtraction, time.Minute)
	defer cancel()

	meta := GetJobMetadata(ctx)
	assert.Equal(t, "sess-1", meta.SessionID)
	assert.Equal(t, JobExtraction, meta.JobType)
	assert.NotZero(t, meta.JobID)
	assert.False(t, meta.StartTime.IsZero())

	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestRun_TimeoutIsReported(t *testing.T) {
	ctx, cancel := JobBegin(context.Background(), "sess-1", JobExtraction, 10*time.Millisecond)
	defer cancel()

	err := Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.True(t, IsRetryableError(err))
}

func TestRun_RecoversPanic(t *testing.T) {
	err := Run(context.Background(), func(context.Context) error {
		panic("boom")
	})
	assert.ErrorContains(t, err, "panic recovered: boom")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("groq: status 503")))
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
	assert.False(t, IsRetryableError(errors.New("groq: status 400")))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(nil))
}
