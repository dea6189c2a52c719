package merge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

func mustPatch(t *testing.T, body string) entities.Patch {
	t.Helper()
	p, err := entities.ParsePatch([]byte(body))
	require.NoError(t, err)
	return p
}

func seeded(t *testing.T) entities.ClinicalState {
	t.Helper()
	at := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	batch := []entities.Utterance{
		entities.NewUtterance(1, "I have fever for two days", at),
		entities.NewUtterance(2, "Any cough?", at.Add(5*time.Second)),
	}
	return SeedUtterances(entities.NewClinicalState(), batch)
}

func assertAllSectionsPresent(t *testing.T, s entities.ClinicalState) {
	t.Helper()
	assert.NotNil(t, s.Utterances)
	for _, sec := range entities.ClinicalSections {
		assert.NotNil(t, *s.Section(sec), "section %s", sec)
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "null]")
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, sec := range entities.ClinicalSections {
		assert.NotEqual(t, "null", string(raw[string(sec)]), "section %s", sec)
	}
}

func TestApply_ReplacesValidSection(t *testing.T) {
	prev := entities.NewClinicalState()
	prev.Diagnosis = entities.Entries{entities.TextEntry("viral fever")}

	next, report := Apply(prev, mustPatch(t, `{"diagnosis":["viral fever","dengue"]}`))

	assert.Equal(t, []string{"viral fever", "dengue"}, next.Diagnosis.Names())
	assert.Equal(t, []entities.Section{entities.SectionDiagnosis}, report.Replaced)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, []string{"viral fever"}, prev.Diagnosis.Names(), "prev must not be modified")
}

func TestApply_OmittedOrInvalidSectionKeepsPrevious(t *testing.T) {
	prev := entities.NewClinicalState()
	prev.Symptoms = entities.Entries{entities.ObjectEntry(map[string]any{"name": "fever", "duration": "2 days"})}
	prev.Advice = entities.Entries{entities.TextEntry("rest")}

	next, report := Apply(prev, mustPatch(t, `{"symptoms":"fever","advice":null,"tests":[1,2]}`))

	assert.True(t, next.Symptoms[0].Equal(prev.Symptoms[0]))
	assert.Len(t, next.Symptoms, 1)
	assert.Equal(t, []string{"rest"}, next.Advice.Names())
	assert.Empty(t, next.Tests)
	assert.ElementsMatch(t, []entities.Section{entities.SectionSymptoms, entities.SectionAdvice, entities.SectionTests}, report.Skipped)
	assertAllSectionsPresent(t, next)
}

func TestApply_CarriesForwardOmittedEntries(t *testing.T) {
	prev := entities.NewClinicalState()
	prev.Medications = entities.Entries{
		entities.ObjectEntry(map[string]any{"name": "paracetamol", "dosage": "500mg"}),
		entities.ObjectEntry(map[string]any{"name": "ors"}),
	}

	next, report := Apply(prev, mustPatch(t, `{"medications":[{"name":"paracetamol","dosage":"650mg"}]}`))

	require.Len(t, next.Medications, 2)
	dosage, _ := next.Medications[0].Attr("dosage")
	assert.Equal(t, "650mg", dosage)
	assert.Equal(t, "ors", next.Medications[1].Name())
	assert.Equal(t, 1, report.Retained[entities.SectionMedications])
	require.NoError(t, CheckInvariants(prev, next))
}

func TestApply_SectionsAlwaysPresent(t *testing.T) {
	patches := []string{
		`{}`,
		`{"symptoms":[]}`,
		`{"medications":null,"diagnosis":{"x":1}}`,
		`{"patient":null,"utterances":"nope"}`,
		`{"advice":["hydrate"],"unknown_section":[1]}`,
	}
	state := entities.ClinicalState{}
	for _, body := range patches {
		next, _ := Apply(state, mustPatch(t, body))
		assertAllSectionsPresent(t, next)
		require.NoError(t, CheckInvariants(state, next))
		state = next
	}
}

func TestApply_DemographicsNeverClearedByNull(t *testing.T) {
	prev := entities.NewClinicalState()

	next, report := Apply(prev, mustPatch(t, `{"patient":{"name":"Asha","age":"34","gender":null}}`))
	require.NotNil(t, next.Patient.Name)
	require.NotNil(t, next.Patient.Age)
	assert.Equal(t, "Asha", *next.Patient.Name)
	assert.Equal(t, 34, *next.Patient.Age)
	assert.Nil(t, next.Patient.Gender)
	assert.Equal(t, []string{"name", "age"}, report.DemographicsUpdated)

	after, report := Apply(next, mustPatch(t, `{"patient":{"name":null,"age":null,"gender":"female"}}`))
	require.NotNil(t, after.Patient.Name)
	assert.Equal(t, "Asha", *after.Patient.Name)
	assert.Equal(t, 34, *after.Patient.Age)
	assert.Equal(t, "female", *after.Patient.Gender)
	assert.Equal(t, []string{"gender"}, report.DemographicsUpdated)
	require.NoError(t, CheckInvariants(next, after))
}

func TestApply_DemographicsRejectsBadAge(t *testing.T) {
	prev := entities.NewClinicalState()
	age := 40
	prev.Patient.Age = &age

	next, _ := Apply(prev, mustPatch(t, `{"patient":{"age":"forty"}}`))
	assert.Equal(t, 40, *next.Patient.Age)

	next, _ = Apply(prev, mustPatch(t, `{"patient":{"age":41.5}}`))
	assert.Equal(t, 40, *next.Patient.Age)

	next, _ = Apply(prev, mustPatch(t, `{"patient":{"age":41}}`))
	assert.Equal(t, 41, *next.Patient.Age)
}

func TestApply_SpeakerReconciliationOnlyTouchesSpeaker(t *testing.T) {
	prev := seeded(t)
	before := prev.Utterances[0]

	next, report := Apply(prev, mustPatch(t, `{"utterances":[
		{"index":1,"speaker":"patient","text":"rewritten by model","timestamp":"2030-01-01T00:00:00Z","utterance_id":"other"}
	]}`))

	require.Len(t, next.Utterances, 2)
	after := next.Utterances[0]
	assert.Equal(t, entities.SpeakerPatient, after.Speaker)
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Timestamp, after.Timestamp)
	assert.Equal(t, before.UtteranceID, after.UtteranceID)
	assert.Equal(t, 1, report.SpeakerUpdates)
	assert.Equal(t, entities.SpeakerUnknown, next.Utterances[1].Speaker)
	require.NoError(t, CheckInvariants(prev, next))
}

func TestApply_InvalidSpeakerIgnored(t *testing.T) {
	prev := seeded(t)
	next, report := Apply(prev, mustPatch(t, `{"utterances":[{"index":2,"speaker":"nurse"}]}`))
	assert.Equal(t, entities.SpeakerUnknown, next.Utterances[1].Speaker)
	assert.Zero(t, report.SpeakerUpdates)
}

func TestApply_UnknownUtteranceIndexAcceptedAsIs(t *testing.T) {
	prev := seeded(t)
	next, report := Apply(prev, mustPatch(t, `{"utterances":[
		{"index":4,"speaker":"doctor","text":"take rest"},
		{"index":3,"speaker":"patient","text":"okay"}
	]}`))

	require.Len(t, next.Utterances, 4)
	for i, u := range next.Utterances {
		assert.Equal(t, i+1, u.Index)
	}
	assert.Equal(t, "okay", next.Utterances[2].Text)
	assert.Equal(t, entities.SpeakerDoctor, next.Utterances[3].Speaker)
	assert.Equal(t, 2, report.NewUtterances)
}

func TestSeedUtterances_KeepsExistingEntries(t *testing.T) {
	state := seeded(t)
	state.Utterances[0].Speaker = entities.SpeakerPatient

	at := time.Date(2025, 1, 2, 10, 1, 0, 0, time.UTC)
	again := []entities.Utterance{
		entities.NewUtterance(1, "duplicate", at),
		entities.NewUtterance(3, "Since Monday", at),
	}
	next := SeedUtterances(state, again)

	require.Len(t, next.Utterances, 3)
	assert.Equal(t, "I have fever for two days", next.Utterances[0].Text)
	assert.Equal(t, entities.SpeakerPatient, next.Utterances[0].Speaker)
	assert.Equal(t, "Since Monday", next.Utterances[2].Text)
}

func TestCheckInvariants_DetectsViolations(t *testing.T) {
	prev := seeded(t)
	prev.Diagnosis = entities.Entries{entities.TextEntry("flu")}
	name := "Ravi"
	prev.Patient.Name = &name

	dropped := prev.Clone()
	dropped.Diagnosis = entities.Entries{}
	assert.ErrorIs(t, CheckInvariants(prev, dropped), ucerrors.ErrInvariantViolated)

	cleared := prev.Clone()
	cleared.Patient.Name = nil
	assert.ErrorIs(t, CheckInvariants(prev, cleared), ucerrors.ErrInvariantViolated)

	rewritten := prev.Clone()
	rewritten.Utterances[1].Text = "changed"
	assert.ErrorIs(t, CheckInvariants(prev, rewritten), ucerrors.ErrInvariantViolated)

	missing := prev.Clone()
	missing.Tests = nil
	assert.ErrorIs(t, CheckInvariants(prev, missing), ucerrors.ErrInvariantViolated)

	assert.NoError(t, CheckInvariants(prev, prev.Clone()))
}
