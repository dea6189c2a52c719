package handler

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/errors"
	dto "github.com/johnquangdev/clinical-scribe/internal/adapter/dto/session"
	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/session"
)

// SessionService is the part of the session usecase the handlers drive
type SessionService interface {
	Start(id string) (*session.Session, error)
	AddTranscript(id, text string, at time.Time) (entities.Utterance, error)
	AddTranscriptEdit(id string, edit entities.TranscriptEdit) (entities.TranscriptEdit, error)
	AddStructuredEdit(id string, edit entities.StructuredEdit) (entities.StructuredEdit, error)
	Snapshot(id string) (session.Snapshot, error)
	Regenerate(ctx context.Context, id string) (string, string, error)
	Suggestions(ctx context.Context, id string) (entities.Suggestions, error)
	Finalize(ctx context.Context, id string) (*session.Result, error)
	Abandon(id string)
}

// SuggestionLookup queries the suggestion index with free text
type SuggestionLookup interface {
	Lookup(ctx context.Context, query string, k int) (entities.Suggestions, error)
}

// FeedbackStore persists clinician feedback
type FeedbackStore interface {
	StoreFeedback(ctx context.Context, feedback *entities.Feedback) error
}

// Session handles the REST side of live sessions
type Session struct {
	service     SessionService
	suggestions SuggestionLookup
	feedback    FeedbackStore
	logger      *zap.Logger
}

// NewSessionHandler creates a new session handler. suggestions and feedback
// may be nil when those backends are not configured.
func NewSessionHandler(service SessionService, suggestions SuggestionLookup, feedback FeedbackStore, logger *zap.Logger) *Session {
	return &Session{
		service:     service,
		suggestions: suggestions,
		feedback:    feedback,
		logger:      logger,
	}
}

// AddTranscriptEdit handles POST /sessions/:id/transcript-edits
func (h *Session) AddTranscriptEdit(c echo.Context) error {
	var req dto.TranscriptEditRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	edit, err := h.service.AddTranscriptEdit(c.Param("id"), req.ToEntity())
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, dto.EditResponse{Status: "ok", EditID: edit.ID})
}

// AddStructuredEdit handles POST /sessions/:id/structured-edits
func (h *Session) AddStructuredEdit(c echo.Context) error {
	var req dto.StructuredEditRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	edit, err := h.service.AddStructuredEdit(c.Param("id"), req.ToEntity())
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, dto.EditResponse{Status: "ok", EditID: edit.ID})
}

// GetState handles GET /sessions/:id/state
func (h *Session) GetState(c echo.Context) error {
	snap, err := h.service.Snapshot(c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, snap)
}

// Regenerate handles POST /sessions/:id/regenerate
func (h *Session) Regenerate(c echo.Context) error {
	report, path, err := h.service.Regenerate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, dto.RegenerateResponse{
		Status:         "ok",
		ReportPath:     path,
		ClinicalReport: report,
	})
}

// GetSuggestions handles GET /sessions/:id/suggestions
func (h *Session) GetSuggestions(c echo.Context) error {
	suggestions, err := h.service.Suggestions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HandleError(h.logger, c, err)
	}
	return HandleSuccess(h.logger, c, suggestions)
}

// QuerySuggestions handles GET /suggestions?q=&k=
func (h *Session) QuerySuggestions(c echo.Context) error {
	if h.suggestions == nil {
		return HandleError(h.logger, c, errors.ErrCacheFailed("query", stdErrors.New("suggestion index not configured")))
	}

	var req dto.SuggestionsQuery
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	suggestions, err := h.suggestions.Lookup(c.Request().Context(), req.Q, req.K)
	if err != nil {
		return HandleError(h.logger, c, errors.ErrCacheFailed("query", err))
	}
	return HandleSuccess(h.logger, c, suggestions)
}

// SubmitFeedback handles POST /sessions/:id/feedback. Feedback is accepted
// for finished sessions too, so the id is not checked against live sessions.
func (h *Session) SubmitFeedback(c echo.Context) error {
	if h.feedback == nil {
		return HandleError(h.logger, c, errors.ErrStorageFailed("feedback", stdErrors.New("artifact store not configured")))
	}

	var req dto.FeedbackRequest
	if err := bindAndValidate(c, &req); err != nil {
		return HandleError(h.logger, c, err)
	}

	fb := entities.NewFeedback(c.Param("id"), entities.FeedbackRating(req.Feedback))
	if err := h.feedback.StoreFeedback(c.Request().Context(), fb); err != nil {
		return HandleError(h.logger, c, errors.ErrStorageFailed("feedback", err))
	}
	return HandleSuccess(h.logger, c, dto.StatusResponse{Status: "ok"})
}
