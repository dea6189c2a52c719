// Package trust classifies finalized output into what may be shown to the user.
package trust

import (
	"strings"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// Tier is the gate's verdict
type Tier string

const (
	TierUse     Tier = "use"
	TierPartial Tier = "partial"
	TierBlocked Tier = "blocked"
)

// Reasons attached to a decision
const (
	ReasonNotAccepted       = "llm_not_accepted"
	ReasonAccepted          = "llm_output_accepted"
	ReasonNoPatientSpeech   = "no_patient_speech"
	ReasonPatientPresent    = "patient_present"
	ReasonDoctorMissing     = "doctor_missing"
	ReasonDoctorPresent     = "doctor_present"
	ReasonMedicationsListed = "medications_grounded"
	ReasonSymptomUngrounded = "symptom_not_grounded"
	ReasonSymptomsGrounded  = "symptoms_grounded"
)

// Input is the evidence the gate looks at
type Input struct {
	CallSucceeded bool
	Transcript    []entities.Utterance
	Symptoms      entities.Entries
	Medications   entities.Entries
}

// Decision is one classification
type Decision struct {
	Tier    Tier     `json:"trust_decision"`
	Reasons []string `json:"trust_reasons"`
}

// Blocked reports whether nothing derived may be shown
func (d Decision) Blocked() bool {
	return d.Tier == TierBlocked
}

// Evaluate applies the gate in order: call outcome, patient speech, doctor
// speech, then symptom grounding against what the patient actually said.
func Evaluate(in Input) Decision {
	if !in.CallSucceeded {
		return Decision{Tier: TierBlocked, Reasons: []string{ReasonNotAccepted}}
	}

	var hasDoctor bool
	var patientText []string
	for _, u := range in.Transcript {
		switch u.Speaker {
		case entities.SpeakerPatient:
			patientText = append(patientText, u.Text)
		case entities.SpeakerDoctor:
			hasDoctor = true
		}
	}

	if len(patientText) == 0 {
		return Decision{Tier: TierBlocked, Reasons: []string{ReasonNoPatientSpeech}}
	}
	if !hasDoctor {
		return Decision{
			Tier:    TierPartial,
			Reasons: []string{ReasonAccepted, ReasonPatientPresent, ReasonDoctorMissing},
		}
	}

	reasons := []string{ReasonAccepted, ReasonDoctorPresent}
	if len(in.Medications) > 0 {
		reasons = append(reasons, ReasonMedicationsListed)
	}

	spoken := strings.ToLower(strings.Join(patientText, " "))
	for _, s := range in.Symptoms {
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		if name == "" || !strings.Contains(spoken, name) {
			return Decision{Tier: TierBlocked, Reasons: []string{ReasonSymptomUngrounded}}
		}
	}

	return Decision{Tier: TierUse, Reasons: append(reasons, ReasonSymptomsGrounded)}
}
