package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

const systemPrompt = "You are a careful medical scribe. You never invent facts and you answer with JSON only."

const incrementalInstructions = `You are updating an existing structured medical record.

Patient demographics (strict):
- Extract the patient name ONLY if the patient explicitly states their own name.
- Extract age ONLY if explicitly stated as a number.
- Extract gender ONLY if explicitly stated.
- Do NOT overwrite existing patient fields unless a new explicit statement is made.

Tasks:
- Assign a speaker to each NEW utterance by its index: "patient", "doctor" or "unknown".
- Update symptoms (with duration if mentioned), medications (with dosage if mentioned),
  diagnosis (ONLY if explicitly stated), advice (ONLY if explicitly stated),
  investigations (objective measurements with values, e.g. {"name": "body temperature", "value": "100 F"})
  and tests (ONLY tests advised by the doctor, normalized to English names).
- Base updates on the new utterances only. Returning the same state is fine when nothing new is clear.
- Do NOT invent or infer facts. If unsure, leave fields unchanged.

Return a JSON object with these optional fields:
patient, symptoms, medications, diagnosis, advice, investigations, tests, utterances.
"patient" must be an object with name (string or null), age (number or null), gender (string or null).
"utterances" must be a list of {"index": number, "speaker": "patient|doctor|unknown"}.
A list you return REPLACES the stored list, so repeat entries you want to keep.
Include a field ONLY if it should be added or updated.`

const reportInstructions = `You are generating a draft clinical note from structured medical data.

Rules:
- Do NOT add new medical facts.
- Do NOT infer diagnosis.
- Use ONLY the provided structured data.
- Write the entire note in clear, professional English.
- This is a DRAFT for doctor review.

Return JSON in the format {"clinical_report": "string"}.`

type promptUtterance struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// buildIncrementalPrompt renders the current clinical sections (utterances
// excluded) and the new batch
func buildIncrementalPrompt(current entities.ClinicalState, batch []entities.Utterance) (string, error) {
	current.Normalize()
	sections := map[string]any{
		string(entities.SectionPatient): current.Patient,
	}
	for _, sec := range entities.ClinicalSections {
		sections[string(sec)] = *current.Section(sec)
	}
	stateJSON, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("encode current state: %w", err)
	}

	lines := make([]promptUtterance, 0, len(batch))
	for _, u := range batch {
		lines = append(lines, promptUtterance{Index: u.Index, Text: u.Text})
	}
	batchJSON, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode utterances: %w", err)
	}

	var b strings.Builder
	b.WriteString(incrementalInstructions)
	b.WriteString("\n\nCURRENT STATE:\n")
	b.Write(stateJSON)
	b.WriteString("\n\nNEW UTTERANCES:\n")
	b.Write(batchJSON)
	return b.String(), nil
}

func buildReportPrompt(final entities.ClinicalState) (string, error) {
	stateJSON, err := json.Marshal(final)
	if err != nil {
		return "", fmt.Errorf("encode final state: %w", err)
	}
	return reportInstructions + "\n\nSTRUCTURED STATE:\n" + string(stateJSON), nil
}
