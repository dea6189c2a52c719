package session

import (
	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	"github.com/johnquangdev/clinical-scribe/internal/usecase/trust"
)

// Outbound websocket message types
const (
	MessageSession    = "session"
	MessagePartial    = "partial"
	MessageTranscript = "transcript"
	MessageStructured = "structured"
	MessageError      = "error"
)

// Trusted output statuses
const (
	OutputOK      = "ok"
	OutputPartial = "partial"
	OutputBlocked = "blocked"
)

// SessionMessage tells the client which session id its edits should target
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// PartialMessage relays interim recognizer text
type PartialMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TranscriptMessage echoes a final utterance back to the client
type TranscriptMessage struct {
	Type        string `json:"type"`
	Time        string `json:"time"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	UtteranceID string `json:"utterance_id"`
	Index       int    `json:"index"`
}

// ExtractedFacts is what a partial output may show
type ExtractedFacts struct {
	Symptoms entities.Entries `json:"symptoms"`
}

// TrustedOutput is the part of the result the trust gate allows to surface
type TrustedOutput struct {
	Status         string          `json:"status"`
	ClinicalReport string          `json:"clinical_report,omitempty"`
	ExtractedFacts *ExtractedFacts `json:"extracted_facts,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// StructuredMessage is the final message of a session. Everything derived
// from enrichment is filled according to the trust decision: a partial
// result carries symptoms only and a blocked one carries nothing derived.
type StructuredMessage struct {
	Type              string                  `json:"type"`
	SessionID         string                  `json:"session_id"`
	StructuredState   *entities.ClinicalState `json:"structured_state,omitempty"`
	ClinicalReport    string                  `json:"clinical_report,omitempty"`
	ReportPath        string                  `json:"report_path,omitempty"`
	Trust             trust.Decision          `json:"trust"`
	Output            TrustedOutput           `json:"output"`
	SystemSuggestions *entities.Suggestions   `json:"system_suggestions,omitempty"`
}

// ErrorMessage reports a failure over the socket
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EditResponse acknowledges an appended edit
type EditResponse struct {
	Status string `json:"status"`
	EditID string `json:"edit_id"`
}

// RegenerateResponse carries a freshly generated report
type RegenerateResponse struct {
	Status         string `json:"status"`
	ReportPath     string `json:"report_path,omitempty"`
	ClinicalReport string `json:"clinical_report"`
}

// StatusResponse is a bare acknowledgement
type StatusResponse struct {
	Status string `json:"status"`
}
