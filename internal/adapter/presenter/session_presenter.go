package presenter

import (
	dto "github.com/johnquangdev/clinical-scribe/internal/adapter/dto/session"
	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/session"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/trust"
)

const (
	partialMessage = "Preliminary information extracted. Doctor review required for diagnosis and treatment."
	blockedMessage = "Clinical report could not be generated automatically. Please consult a doctor."
)

// ToTrustedOutput keeps only what the trust decision allows to be shown
func ToTrustedOutput(decision trust.Decision, state entities.ClinicalState, report string) dto.TrustedOutput {
	switch decision.Tier {
	case trust.TierUse:
		return dto.TrustedOutput{Status: dto.OutputOK, ClinicalReport: report}
	case trust.TierPartial:
		return dto.TrustedOutput{
			Status:         dto.OutputPartial,
			ExtractedFacts: &dto.ExtractedFacts{Symptoms: state.Symptoms.Clone()},
			Message:        partialMessage,
		}
	}
	return dto.TrustedOutput{Status: dto.OutputBlocked, Message: blockedMessage}
}

// ToTranscriptMessage converts an appended utterance to its outbound message
func ToTranscriptMessage(u entities.Utterance) dto.TranscriptMessage {
	return dto.TranscriptMessage{
		Type:        dto.MessageTranscript,
		Time:        u.Timestamp.Format("15:04:05"),
		Speaker:     string(u.Speaker),
		Text:        u.Text,
		UtteranceID: u.ID,
		Index:       u.Index,
	}
}

// ToStructuredMessage converts a finalization result to the final message.
// The full record stays with the artifact writers; only what the trust
// decision allows is copied into the message.
func ToStructuredMessage(res *session.Result) dto.StructuredMessage {
	if res == nil {
		return dto.StructuredMessage{Type: dto.MessageStructured}
	}

	msg := dto.StructuredMessage{
		Type:      dto.MessageStructured,
		SessionID: res.SessionID,
		Trust:     res.Decision,
		Output:    ToTrustedOutput(res.Decision, res.State, res.Report),
	}
	if res.Decision.Blocked() {
		return msg
	}

	if res.Decision.Tier == trust.TierPartial {
		facts := entities.NewClinicalState()
		facts.Symptoms = res.State.Symptoms.Clone()
		msg.StructuredState = &facts
		return msg
	}

	state := res.State.Clone()
	suggestions := res.Suggestions
	msg.StructuredState = &state
	msg.ClinicalReport = res.Report
	msg.ReportPath = res.ReportPath
	msg.SystemSuggestions = &suggestions
	return msg
}
