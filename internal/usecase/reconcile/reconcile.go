// Package reconcile applies human corrections on top of machine-derived
// session output. It runs once at finalization, after the last merge, so an
// edit always wins over whatever the extraction service produced for the same
// target. Edits are applied in log order; a later edit supersedes an earlier one.
package reconcile

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// ApplySpeakerLabels copies machine speaker labels from the clinical record
// onto the transcript. Unknown labels never overwrite a known speaker.
func ApplySpeakerLabels(transcript []entities.Utterance, labels []entities.UtteranceEntry) []entities.Utterance {
	out := append([]entities.Utterance(nil), transcript...)

	byIndex := make(map[int]entities.Speaker, len(labels))
	for _, l := range labels {
		if l.Speaker.Valid() && l.Speaker != entities.SpeakerUnknown {
			byIndex[l.Index] = l.Speaker
		}
	}
	for i := range out {
		if sp, ok := byIndex[out[i].Index]; ok {
			out[i].Speaker = sp
		}
	}
	return out
}

// ApplyTranscriptEdits returns a copy of transcript with the edits applied.
// Edits for unknown utterance ids are skipped.
func ApplyTranscriptEdits(transcript []entities.Utterance, edits []entities.TranscriptEdit) []entities.Utterance {
	out := append([]entities.Utterance(nil), transcript...)

	position := make(map[string]int, len(out))
	for i, u := range out {
		position[u.ID] = i
	}

	for _, e := range edits {
		pos, ok := position[e.UtteranceID]
		if !ok {
			continue
		}
		switch e.Field {
		case entities.EditFieldText:
			out[pos].Text = e.NewValue
		case entities.EditFieldSpeaker:
			sp := entities.Speaker(strings.ToLower(strings.TrimSpace(e.NewValue)))
			if sp.Valid() {
				out[pos].Speaker = sp
			}
		}
	}
	return out
}

// RebuildUtterances replaces the utterances section with the given transcript.
// Entries the transcript does not cover are kept.
func RebuildUtterances(state entities.ClinicalState, transcript []entities.Utterance) entities.ClinicalState {
	out := state.Clone()
	out.Normalize()

	covered := make(map[int]struct{}, len(transcript))
	entries := make([]entities.UtteranceEntry, 0, len(transcript)+len(out.Utterances))
	for _, u := range transcript {
		entries = append(entries, u.Entry())
		covered[u.Index] = struct{}{}
	}
	for _, u := range out.Utterances {
		if _, ok := covered[u.Index]; !ok {
			entries = append(entries, u)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	out.Utterances = entries
	return out
}

// ApplyStructuredEdits returns a copy of state with the edits applied.
//
// add appends the value, remove drops every structurally equal entry and
// modify replaces the first entry with the same key. Edits against the
// patient section set (add, modify) or clear (remove) demographic fields.
// Unrecognized sections are skipped.
func ApplyStructuredEdits(state entities.ClinicalState, edits []entities.StructuredEdit) entities.ClinicalState {
	out := state.Clone()
	out.Normalize()

	for _, e := range edits {
		if e.Section == entities.SectionPatient {
			applyDemographicsEdit(&out.Patient, e)
			continue
		}
		section := out.Section(e.Section)
		if section == nil {
			continue
		}

		switch e.Action {
		case entities.EditActionAdd:
			*section = append(*section, e.Value.Clone())
		case entities.EditActionRemove:
			kept := make(entities.Entries, 0, len(*section))
			for _, v := range *section {
				if !v.Equal(e.Value) {
					kept = append(kept, v)
				}
			}
			*section = kept
		case entities.EditActionModify:
			if i := section.IndexOfKey(e.Value.Key()); i >= 0 {
				(*section)[i] = e.Value.Clone()
			}
		}
	}
	return out
}

func applyDemographicsEdit(d *entities.Demographics, e entities.StructuredEdit) {
	switch e.Action {
	case entities.EditActionAdd, entities.EditActionModify:
		if !e.Value.IsObject() {
			return
		}
		if v, ok := e.Value.Attr("name"); ok {
			d.Name = stringField(v)
		}
		if v, ok := e.Value.Attr("age"); ok {
			d.Age = ageField(v)
		}
		if v, ok := e.Value.Attr("gender"); ok {
			d.Gender = stringField(v)
		}
	case entities.EditActionRemove:
		for _, field := range demographicFields(e.Value) {
			switch field {
			case "name":
				d.Name = nil
			case "age":
				d.Age = nil
			case "gender":
				d.Gender = nil
			}
		}
	}
}

// demographicFields lists the fields a remove edit targets: the keys of an
// object value, or a scalar value naming a single field.
func demographicFields(v entities.Entry) []string {
	if !v.IsObject() {
		return []string{strings.ToLower(strings.TrimSpace(v.Text()))}
	}
	attrs := v.Attrs()
	fields := make([]string, 0, len(attrs))
	for k := range attrs {
		fields = append(fields, k)
	}
	return fields
}

func stringField(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func ageField(v any) *int {
	switch age := v.(type) {
	case float64:
		if age < 0 || age != math.Trunc(age) {
			return nil
		}
		n := int(age)
		return &n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(age))
		if err != nil || n < 0 {
			return nil
		}
		return &n
	}
	return nil
}
