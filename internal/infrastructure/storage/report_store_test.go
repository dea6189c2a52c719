package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

type fakeUploader struct {
	objects map[string]string
	err     error
}

func (f *fakeUploader) UploadText(_ context.Context, name, content, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[name] = content
	return nil
}

func sampleState() entities.ClinicalState {
	name := "Asha"
	age := 34
	s := entities.NewClinicalState()
	s.Patient.Name = &name
	s.Patient.Age = &age
	s.Symptoms = entities.Entries{entities.ObjectEntry(map[string]any{"name": "fever", "duration": "two days"})}
	s.Medications = entities.Entries{entities.ObjectEntry(map[string]any{"name": "paracetamol", "dosage": "500mg", "frequency": nil})}
	s.Diagnosis = entities.Entries{entities.TextEntry("viral fever")}
	return s
}

func TestRenderReport(t *testing.T) {
	doc, err := RenderReport("s1", "2025-06-01", sampleState(), "  Patient presents with fever.  ")
	require.NoError(t, err)

	assert.Contains(t, doc, "Session: s1")
	assert.Contains(t, doc, "- Name: Asha")
	assert.Contains(t, doc, "- Age: 34")
	assert.Contains(t, doc, "- Gender: unknown")
	assert.Contains(t, doc, "- fever (duration: two days)")
	assert.Contains(t, doc, "- paracetamol (dosage: 500mg)")
	assert.Contains(t, doc, "- viral fever")
	assert.Contains(t, doc, "## Advice\n\nNone recorded.")
	assert.Contains(t, doc, "Patient presents with fever.\n")
}

func TestRenderReport_MissingReport(t *testing.T) {
	doc, err := RenderReport("s1", "2025-06-01", entities.NewClinicalState(), "")
	require.NoError(t, err)
	assert.Contains(t, doc, "Report unavailable.")
}

func TestStoreReport_OverwritesSameKey(t *testing.T) {
	up := &fakeUploader{}
	store := NewReportStore(up, zap.NewNop())

	first, err := store.StoreReport(context.Background(), "s1", "2025-06-01", sampleState(), "first")
	require.NoError(t, err)
	second, err := store.StoreReport(context.Background(), "s1", "2025-06-01", sampleState(), "second")
	require.NoError(t, err)

	assert.Equal(t, "sessions/2025-06-01/s1/clinical_report.md", first)
	assert.Equal(t, first, second)
	require.Len(t, up.objects, 1)
	assert.Contains(t, up.objects[first], "second")
}

func TestStoreReport_UploadFailure(t *testing.T) {
	store := NewReportStore(&fakeUploader{err: errors.New("bucket gone")}, nil)
	_, err := store.StoreReport(context.Background(), "s1", "2025-06-01", sampleState(), "r")
	assert.Error(t, err)
}
