package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/session"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/trust"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
	pkgvalidator "github.com/johnquangdev/clinical-scribe/pkg/validator"
)

type fakeService struct {
	mu         sync.Mutex
	registry   *session.Registry
	edits      []entities.TranscriptEdit
	structured []entities.StructuredEdit
	utterances []entities.Utterance
	finalized  []string
	abandoned  []string
	result     *session.Result
}

func newFakeService() *fakeService {
	return &fakeService{registry: session.NewRegistry()}
}

func (f *fakeService) Start(id string) (*session.Session, error) {
	return f.registry.Create(id)
}

func (f *fakeService) AddTranscript(id, text string, at time.Time) (entities.Utterance, error) {
	sess, err := f.registry.Get(id)
	if err != nil {
		return entities.Utterance{}, err
	}
	if at.IsZero() {
		at = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	}
	u, err := sess.AppendUtterance(text, at, at)
	if err == nil {
		f.mu.Lock()
		f.utterances = append(f.utterances, u)
		f.mu.Unlock()
	}
	return u, err
}

func (f *fakeService) AddTranscriptEdit(id string, edit entities.TranscriptEdit) (entities.TranscriptEdit, error) {
	if _, err := f.registry.Get(id); err != nil {
		return entities.TranscriptEdit{}, err
	}
	edit.ID = "edit-1"
	f.edits = append(f.edits, edit)
	return edit, nil
}

func (f *fakeService) AddStructuredEdit(id string, edit entities.StructuredEdit) (entities.StructuredEdit, error) {
	if _, err := f.registry.Get(id); err != nil {
		return entities.StructuredEdit{}, err
	}
	edit.ID = "edit-2"
	f.structured = append(f.structured, edit)
	return edit, nil
}

func (f *fakeService) Snapshot(id string) (session.Snapshot, error) {
	sess, err := f.registry.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (f *fakeService) Regenerate(_ context.Context, id string) (string, string, error) {
	if _, err := f.registry.Get(id); err != nil {
		return "", "", err
	}
	return "fresh report", "sessions/2025-06-01/" + id + "/clinical_report.md", nil
}

func (f *fakeService) Suggestions(_ context.Context, id string) (entities.Suggestions, error) {
	if _, err := f.registry.Get(id); err != nil {
		return entities.Suggestions{}, err
	}
	return entities.Suggestions{BasedOnCases: 2, Diagnosis: []entities.SuggestionCount{{Name: "flu", Count: 2}}}, nil
}

func (f *fakeService) Finalize(_ context.Context, id string) (*session.Result, error) {
	if _, err := f.registry.Get(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, id)
	f.registry.Remove(id)
	if f.result != nil {
		return f.result, nil
	}
	return &session.Result{
		SessionID:   id,
		State:       entities.NewClinicalState(),
		Report:      "report",
		Decision:    trust.Decision{Tier: trust.TierUse, Reasons: []string{trust.ReasonAccepted}},
		Suggestions: entities.EmptySuggestions(),
	}, nil
}

func (f *fakeService) Abandon(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	f.registry.Remove(id)
}

type fakeLookup struct {
	query string
	k     int
	err   error
}

func (f *fakeLookup) Lookup(_ context.Context, query string, k int) (entities.Suggestions, error) {
	f.query, f.k = query, k
	if f.err != nil {
		return entities.Suggestions{}, f.err
	}
	return entities.EmptySuggestions(), nil
}

type fakeFeedback struct {
	stored []*entities.Feedback
}

func (f *fakeFeedback) StoreFeedback(_ context.Context, fb *entities.Feedback) error {
	f.stored = append(f.stored, fb)
	return nil
}

type fixture struct {
	e        *echo.Echo
	service  *fakeService
	lookup   *fakeLookup
	feedback *fakeFeedback
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		e:        echo.New(),
		service:  newFakeService(),
		lookup:   &fakeLookup{},
		feedback: &fakeFeedback{},
	}
	fx.e.Validator = pkgvalidator.New()

	h := NewSessionHandler(fx.service, fx.lookup, fx.feedback, zap.NewNop())
	cfg := &config.Config{Server: config.ServerConfig{Environment: "test"}}
	NewRouter(cfg, h, NewSessionSocket(fx.service, nil, zap.NewNop())).Setup(fx.e)
	return fx
}

func (fx *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	fx.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode(t, rec)["environment"])
}

func TestAddTranscriptEdit(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	rec := fx.do(http.MethodPost, "/v1/sessions/s1/transcript-edits",
		`{"utterance_id":"u1","field":"speaker","old_value":"unknown","new_value":"doctor","edited_by":"dr.rao"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "edit-1", data["edit_id"])
	require.Len(t, fx.service.edits, 1)
	assert.Equal(t, entities.EditFieldSpeaker, fx.service.edits[0].Field)
	assert.Equal(t, "dr.rao", fx.service.edits[0].Author)
}

func TestAddTranscriptEdit_UnknownSession(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(http.MethodPost, "/v1/sessions/missing/transcript-edits",
		`{"utterance_id":"u1","field":"text","new_value":"fever"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "SESSION_NOT_FOUND", body["code"])
	assert.Equal(t, "missing", body["details"].(map[string]any)["session_id"])
}

func TestAddTranscriptEdit_InvalidField(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	rec := fx.do(http.MethodPost, "/v1/sessions/s1/transcript-edits", `{"utterance_id":"u1","field":"volume"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode(t, rec)["code"])
	assert.Empty(t, fx.service.edits)
}

func TestAddStructuredEdit(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	rec := fx.do(http.MethodPost, "/v1/sessions/s1/structured-edits",
		`{"section":"medications","action":"add","value":{"name":"paracetamol","dosage":"500mg"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, fx.service.structured, 1)

	edit := fx.service.structured[0]
	assert.Equal(t, entities.SectionMedications, edit.Section)
	assert.Equal(t, entities.EditActionAdd, edit.Action)
	assert.Equal(t, "paracetamol", edit.Value.Name())
}

func TestAddStructuredEdit_Validation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown section", `{"section":"billing","action":"add","value":"x"}`, http.StatusBadRequest},
		{"unknown action", `{"section":"diagnosis","action":"replace","value":"x"}`, http.StatusBadRequest},
		{"value not string or object", `{"section":"diagnosis","action":"add","value":42}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(http.MethodPost, "/v1/sessions/s1/structured-edits", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Empty(t, fx.service.structured)
}

func TestGetState(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)
	_, err = fx.service.AddTranscript("s1", "I have fever", time.Time{})
	require.NoError(t, err)

	rec := fx.do(http.MethodGet, "/v1/sessions/s1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "s1", data["session_id"])
	assert.EqualValues(t, 1, data["pending"])
	assert.Len(t, data["transcript"], 1)

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/v1/sessions/nope/state", "").Code)
}

func TestRegenerate(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	rec := fx.do(http.MethodPost, "/v1/sessions/s1/regenerate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "fresh report", data["clinical_report"])
	assert.Equal(t, "sessions/2025-06-01/s1/clinical_report.md", data["report_path"])

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodPost, "/v1/sessions/nope/regenerate", "").Code)
}

func TestSessionSuggestions(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.service.Start("s1")
	require.NoError(t, err)

	rec := fx.do(http.MethodGet, "/v1/sessions/s1/suggestions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 2, data["based_on_cases"])
}

func TestQuerySuggestions(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(http.MethodGet, "/v1/suggestions?q=fever+cough&k=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "fever cough", fx.lookup.query)
	assert.Equal(t, 3, fx.lookup.k)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/v1/suggestions", "").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/v1/suggestions?q=x&k=500", "").Code)

	fx.lookup.err = fmt.Errorf("redis down")
	rec = fx.do(http.MethodGet, "/v1/suggestions?q=fever", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTEGRATION_CACHE_FAILED", decode(t, rec)["code"])
}

func TestSubmitFeedback(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(http.MethodPost, "/v1/sessions/finished-1/feedback", `{"feedback":"like"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fx.feedback.stored, 1)
	assert.Equal(t, "finished-1", fx.feedback.stored[0].SessionID)
	assert.Equal(t, entities.FeedbackLike, fx.feedback.stored[0].Rating)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodPost, "/v1/sessions/s1/feedback", `{"feedback":"meh"}`).Code)
	assert.Len(t, fx.feedback.stored, 1)
}

func TestSubmitFeedback_NoStore(t *testing.T) {
	e := echo.New()
	e.Validator = pkgvalidator.New()
	NewRouter(nil, NewSessionHandler(newFakeService(), nil, nil, nil), nil).Setup(e)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/feedback", strings.NewReader(`{"feedback":"like"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleError_MapsInactive(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("s9")

	require.NoError(t, HandleError(nil, c, fmt.Errorf("append: %w", ucerrors.ErrSessionInactive)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SESSION_INACTIVE", decode(t, rec)["code"])
}

func TestRouter_NilHandlers(t *testing.T) {
	e := echo.New()
	NewRouter(nil, nil, nil).Setup(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/state", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
