package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPatchNotObject is returned when the extraction output is not a JSON object
var ErrPatchNotObject = errors.New("candidate patch must be a JSON object")

// Patch is a partial proposed update to a ClinicalState. Sections are kept
// raw so the merge boundary can validate each one independently; an absent
// section means "no change".
type Patch struct {
	Patient  json.RawMessage
	Sections map[Section]json.RawMessage
	Raw      json.RawMessage
}

// ParsePatch decodes extraction output. Unknown keys are ignored.
func ParsePatch(data []byte) (Patch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Patch{}, ErrPatchNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Patch{}, fmt.Errorf("decode candidate patch: %w", err)
	}

	p := Patch{
		Sections: make(map[Section]json.RawMessage),
		Raw:      append(json.RawMessage(nil), trimmed...),
	}
	for key, raw := range fields {
		sec := Section(key)
		switch {
		case sec == SectionPatient:
			p.Patient = raw
		case sec == SectionUtterances || sec.IsClinical():
			p.Sections[sec] = raw
		}
	}
	return p, nil
}

// Has reports whether the patch mentions the section
func (p Patch) Has(sec Section) bool {
	if sec == SectionPatient {
		return len(p.Patient) > 0
	}
	_, ok := p.Sections[sec]
	return ok
}
