package jobcontext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyJobType      KeyContext = "job_type"
	keySessionID    KeyContext = "session_id"
	keyJobStartTime KeyContext = "job_start_time"
)

// Job types
const (
	JobExtraction = "extraction"
	JobReport     = "report"
	JobArtifacts  = "artifacts"
)

// ErrJobTimeout is returned by Run when the job outlives its deadline
var ErrJobTimeout = errors.New("job timed out")

// JobMetadata holds metadata for a job execution
type JobMetadata struct {
	JobID     uuid.UUID
	JobType   string
	SessionID string
	StartTime time.Time
}

// JobBegin derives a job context from parentCtx with a deadline and metadata.
// A non-positive timeout leaves the parent deadline in place.
func JobBegin(parentCtx context.Context, sessionID, jobType string, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}

	ctx = context.WithValue(ctx, keyJobID, uuid.New())
	ctx = context.WithValue(ctx, keyJobType, jobType)
	ctx = context.WithValue(ctx, keySessionID, sessionID)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())

	return ctx, cancel
}

// Run executes jobFunc with panic recovery. Deadline expiry is reported as
// ErrJobTimeout wrapping the context error.
func Run(ctx context.Context, jobFunc func(context.Context) error) (err error) {
	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled before job execution: %w", ctx.Err())
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic recovered: %v", p)
		}
	}()

	err = jobFunc(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrJobTimeout, err)
	}
	return err
}

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetJobType extracts job type from context
func GetJobType(ctx context.Context) (string, bool) {
	jobType, ok := ctx.Value(keyJobType).(string)
	return jobType, ok
}

// GetSessionID extracts the session the job belongs to
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(keySessionID).(string)
	return id, ok
}

// GetJobStartTime extracts job start time from context
func GetJobStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(keyJobStartTime).(time.Time)
	return startTime, ok
}

// GetJobMetadata extracts all job metadata from context
func GetJobMetadata(ctx context.Context) *JobMetadata {
	jobID, _ := GetJobID(ctx)
	jobType, _ := GetJobType(ctx)
	sessionID, _ := GetSessionID(ctx)
	startTime, _ := GetJobStartTime(ctx)

	return &JobMetadata{
		JobID:     jobID,
		JobType:   jobType,
		SessionID: sessionID,
		StartTime: startTime,
	}
}

// IsRetryableError checks if an error should trigger a retry
// Retryable errors include: network errors, timeouts, rate limits
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJobTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") {
		return true
	}

	// Database deadlock/lock errors (Postgres)
	if strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "40001") || // serialization_failure
		strings.Contains(errStr, "40p01") { // deadlock_detected
		return true
	}

	// API rate limiting
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "status 429") {
		return true
	}

	// Server errors (5xx)
	if strings.Contains(errStr, "status 5") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "bad gateway") {
		return true
	}

	return false
}
