package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

var t0 = time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

func transcript() []entities.Utterance {
	return []entities.Utterance{
		entities.NewUtterance(1, "I have fever for two days", t0),
		entities.NewUtterance(2, "Take paracetamol", t0.Add(3*time.Second)),
	}
}

func structured(sec entities.Section, action entities.EditAction, value entities.Entry) entities.StructuredEdit {
	return entities.StructuredEdit{Section: sec, Action: action, Value: value, Author: "dr.mehta", Timestamp: t0}
}

func TestApplyTranscriptEdits_TextAndSpeaker(t *testing.T) {
	in := transcript()
	edits := []entities.TranscriptEdit{
		{UtteranceID: in[0].ID, Field: entities.EditFieldText, OldValue: in[0].Text, NewValue: "I have had fever for three days"},
		{UtteranceID: in[1].ID, Field: entities.EditFieldSpeaker, NewValue: "doctor"},
		{UtteranceID: "missing", Field: entities.EditFieldText, NewValue: "ignored"},
	}

	out := ApplyTranscriptEdits(in, edits)

	require.Len(t, out, 2)
	assert.Equal(t, "I have had fever for three days", out[0].Text)
	assert.Equal(t, in[0].ID, out[0].ID)
	assert.Equal(t, in[0].Timestamp, out[0].Timestamp)
	assert.Equal(t, entities.SpeakerUnknown, out[0].Speaker)
	assert.Equal(t, entities.SpeakerDoctor, out[1].Speaker)
	assert.Equal(t, "Take paracetamol", out[1].Text)
	assert.Equal(t, "I have fever for two days", in[0].Text, "input must not be modified")
}

func TestApplyTranscriptEdits_LaterEditWins(t *testing.T) {
	in := transcript()
	edits := []entities.TranscriptEdit{
		{UtteranceID: in[0].ID, Field: entities.EditFieldSpeaker, NewValue: "doctor"},
		{UtteranceID: in[0].ID, Field: entities.EditFieldSpeaker, NewValue: "patient"},
		{UtteranceID: in[0].ID, Field: entities.EditFieldSpeaker, NewValue: "nurse"},
	}
	out := ApplyTranscriptEdits(in, edits)
	assert.Equal(t, entities.SpeakerPatient, out[0].Speaker)
}

func TestApplySpeakerLabels(t *testing.T) {
	in := transcript()
	in[1].Speaker = entities.SpeakerDoctor
	labels := []entities.UtteranceEntry{
		{Index: 1, Speaker: entities.SpeakerPatient},
		{Index: 2, Speaker: entities.SpeakerUnknown},
		{Index: 9, Speaker: entities.SpeakerDoctor},
	}

	out := ApplySpeakerLabels(in, labels)

	assert.Equal(t, entities.SpeakerPatient, out[0].Speaker)
	assert.Equal(t, entities.SpeakerDoctor, out[1].Speaker)
}

func TestRebuildUtterances(t *testing.T) {
	in := transcript()
	state := entities.NewClinicalState()
	state.Utterances = []entities.UtteranceEntry{
		{Index: 1, Text: "stale", Speaker: entities.SpeakerUnknown},
		{Index: 3, Text: "model only", Speaker: entities.SpeakerDoctor},
	}
	in[0].Text = "corrected"

	out := RebuildUtterances(state, in)

	require.Len(t, out.Utterances, 3)
	assert.Equal(t, "corrected", out.Utterances[0].Text)
	assert.Equal(t, in[0].ID, out.Utterances[0].UtteranceID)
	assert.Equal(t, "model only", out.Utterances[2].Text)
}

func TestApplyStructuredEdits_RemoveAfterMergeWins(t *testing.T) {
	state := entities.NewClinicalState()
	state.Diagnosis = entities.Entries{entities.TextEntry("flu")}

	out := ApplyStructuredEdits(state, []entities.StructuredEdit{
		structured(entities.SectionDiagnosis, entities.EditActionRemove, entities.TextEntry("flu")),
	})

	assert.Empty(t, out.Diagnosis)
	assert.NotNil(t, out.Diagnosis)
	assert.Equal(t, []string{"flu"}, state.Diagnosis.Names())
}

func TestApplyStructuredEdits_AddTwiceThenRemove(t *testing.T) {
	value := entities.ObjectEntry(map[string]any{"name": "cbc"})
	add := structured(entities.SectionTests, entities.EditActionAdd, value)

	out := ApplyStructuredEdits(entities.NewClinicalState(), []entities.StructuredEdit{add, add})
	assert.Len(t, out.Tests, 2)

	out = ApplyStructuredEdits(entities.NewClinicalState(), []entities.StructuredEdit{
		add, add, structured(entities.SectionTests, entities.EditActionRemove, value),
	})
	assert.Empty(t, out.Tests)
}

func TestApplyStructuredEdits_ModifyReplacesFirstMatchInPlace(t *testing.T) {
	state := entities.NewClinicalState()
	state.Medications = entities.Entries{
		entities.ObjectEntry(map[string]any{"name": "ors"}),
		entities.ObjectEntry(map[string]any{"name": "paracetamol", "dosage": "500mg"}),
		entities.ObjectEntry(map[string]any{"name": "paracetamol", "dosage": "250mg"}),
	}

	out := ApplyStructuredEdits(state, []entities.StructuredEdit{
		structured(entities.SectionMedications, entities.EditActionModify,
			entities.ObjectEntry(map[string]any{"name": "paracetamol", "dosage": "650mg"})),
		structured(entities.SectionMedications, entities.EditActionModify,
			entities.ObjectEntry(map[string]any{"name": "cetirizine"})),
	})

	require.Len(t, out.Medications, 3)
	assert.Equal(t, []string{"ors", "paracetamol", "paracetamol"}, out.Medications.Names())
	dosage, _ := out.Medications[1].Attr("dosage")
	assert.Equal(t, "650mg", dosage)
	dosage, _ = out.Medications[2].Attr("dosage")
	assert.Equal(t, "250mg", dosage)
}

func TestApplyStructuredEdits_UnknownSectionIgnored(t *testing.T) {
	state := entities.NewClinicalState()
	out := ApplyStructuredEdits(state, []entities.StructuredEdit{
		structured(entities.Section("allergies"), entities.EditActionAdd, entities.TextEntry("penicillin")),
		structured(entities.SectionUtterances, entities.EditActionAdd, entities.TextEntry("hello")),
	})
	assert.Equal(t, state, out)
}

func TestApplyStructuredEdits_Demographics(t *testing.T) {
	state := entities.NewClinicalState()
	name := "Asha"
	age := 34
	state.Patient = entities.Demographics{Name: &name, Age: &age}

	out := ApplyStructuredEdits(state, []entities.StructuredEdit{
		structured(entities.SectionPatient, entities.EditActionModify,
			entities.ObjectEntry(map[string]any{"gender": "female", "age": 35})),
		structured(entities.SectionPatient, entities.EditActionRemove, entities.TextEntry("name")),
	})

	assert.Nil(t, out.Patient.Name)
	require.NotNil(t, out.Patient.Age)
	assert.Equal(t, 35, *out.Patient.Age)
	require.NotNil(t, out.Patient.Gender)
	assert.Equal(t, "female", *out.Patient.Gender)

	cleared := ApplyStructuredEdits(out, []entities.StructuredEdit{
		structured(entities.SectionPatient, entities.EditActionModify,
			entities.ObjectEntry(map[string]any{"age": nil})),
	})
	assert.Nil(t, cleared.Patient.Age)
	assert.NotNil(t, cleared.Patient.Gender)
}
