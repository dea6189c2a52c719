// Package merge folds candidate patches from the extraction service into the
// current clinical state.
//
// Each list section follows replace-or-keep: a valid candidate list replaces
// the section, an absent or mistyped one leaves it untouched. Previously known
// entries the candidate forgot are carried forward, so a merge never deletes.
// Demographics merge field by field and a null never clears a known value.
// Utterance entries keep their text, id and timestamp; only the speaker label
// can be improved by a later candidate.
package merge

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// Report describes what a merge did
type Report struct {
	Replaced            []entities.Section
	Skipped             []entities.Section
	Retained            map[entities.Section]int
	DemographicsUpdated []string
	SpeakerUpdates      int
	NewUtterances       int
}

// Changed reports whether the merge touched anything
func (r Report) Changed() bool {
	return len(r.Replaced) > 0 || len(r.DemographicsUpdated) > 0 || r.SpeakerUpdates > 0 || r.NewUtterances > 0
}

type candidateUtterance struct {
	Index       *int    `json:"index"`
	UtteranceID string  `json:"utterance_id"`
	Speaker     *string `json:"speaker"`
	Text        string  `json:"text"`
	Timestamp   string  `json:"timestamp"`
}

// Apply merges patch into prev and returns the new state. prev is not modified.
func Apply(prev entities.ClinicalState, patch entities.Patch) (entities.ClinicalState, Report) {
	next := prev.Clone()
	next.Normalize()
	report := Report{Retained: make(map[entities.Section]int)}

	for _, sec := range entities.ClinicalSections {
		raw, ok := patch.Sections[sec]
		if !ok {
			continue
		}
		candidate, ok := decodeEntries(raw)
		if !ok {
			report.Skipped = append(report.Skipped, sec)
			continue
		}
		merged, retained := carryForward(candidate, *next.Section(sec))
		*next.Section(sec) = merged
		report.Replaced = append(report.Replaced, sec)
		if retained > 0 {
			report.Retained[sec] = retained
		}
	}

	if len(patch.Patient) > 0 {
		updated, ok := mergeDemographics(&next.Patient, patch.Patient)
		if !ok {
			report.Skipped = append(report.Skipped, entities.SectionPatient)
		}
		report.DemographicsUpdated = updated
	}

	if raw, ok := patch.Sections[entities.SectionUtterances]; ok {
		var candidates []candidateUtterance
		if err := json.Unmarshal(raw, &candidates); err != nil || candidates == nil {
			report.Skipped = append(report.Skipped, entities.SectionUtterances)
		} else {
			report.SpeakerUpdates, report.NewUtterances = mergeUtterances(&next, candidates)
		}
	}

	return next, report
}

// SeedUtterances adds transcript utterances the state does not know yet.
// Existing entries are left exactly as they are.
func SeedUtterances(state entities.ClinicalState, batch []entities.Utterance) entities.ClinicalState {
	next := state.Clone()
	next.Normalize()

	known := make(map[int]struct{}, len(next.Utterances))
	for _, u := range next.Utterances {
		known[u.Index] = struct{}{}
	}
	for _, u := range batch {
		if _, ok := known[u.Index]; ok {
			continue
		}
		next.Utterances = append(next.Utterances, u.Entry())
		known[u.Index] = struct{}{}
	}
	sort.SliceStable(next.Utterances, func(i, j int) bool {
		return next.Utterances[i].Index < next.Utterances[j].Index
	})
	return next
}

// CheckInvariants verifies that next is a lossless successor of prev
func CheckInvariants(prev, next entities.ClinicalState) error {
	if next.Utterances == nil {
		return fmt.Errorf("%w: section %s is missing", ucerrors.ErrInvariantViolated, entities.SectionUtterances)
	}
	for _, sec := range entities.ClinicalSections {
		after := *next.Section(sec)
		if after == nil {
			return fmt.Errorf("%w: section %s is missing", ucerrors.ErrInvariantViolated, sec)
		}
		for _, e := range *prev.Section(sec) {
			if after.IndexOfKey(e.Key()) < 0 {
				return fmt.Errorf("%w: %s entry %q was dropped", ucerrors.ErrInvariantViolated, sec, e.Key())
			}
		}
	}

	if prev.Patient.Name != nil && next.Patient.Name == nil {
		return fmt.Errorf("%w: patient name was cleared", ucerrors.ErrInvariantViolated)
	}
	if prev.Patient.Age != nil && next.Patient.Age == nil {
		return fmt.Errorf("%w: patient age was cleared", ucerrors.ErrInvariantViolated)
	}
	if prev.Patient.Gender != nil && next.Patient.Gender == nil {
		return fmt.Errorf("%w: patient gender was cleared", ucerrors.ErrInvariantViolated)
	}

	byIndex := make(map[int]entities.UtteranceEntry, len(next.Utterances))
	for _, u := range next.Utterances {
		byIndex[u.Index] = u
	}
	for _, before := range prev.Utterances {
		after, ok := byIndex[before.Index]
		if !ok {
			return fmt.Errorf("%w: utterance %d was dropped", ucerrors.ErrInvariantViolated, before.Index)
		}
		if after.UtteranceID != before.UtteranceID || after.Text != before.Text || after.Timestamp != before.Timestamp {
			return fmt.Errorf("%w: utterance %d was rewritten", ucerrors.ErrInvariantViolated, before.Index)
		}
	}
	return nil
}

func decodeEntries(raw json.RawMessage) (entities.Entries, bool) {
	var entries entities.Entries
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil, false
	}
	return entries, true
}

// carryForward returns the candidate followed by any previous entries whose
// key the candidate no longer mentions.
func carryForward(candidate, previous entities.Entries) (entities.Entries, int) {
	out := candidate.Clone()
	retained := 0
	for _, p := range previous {
		if candidate.IndexOfKey(p.Key()) >= 0 {
			continue
		}
		out = append(out, p.Clone())
		retained++
	}
	return out, retained
}

func mergeDemographics(d *entities.Demographics, raw json.RawMessage) ([]string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}

	var updated []string
	if name, ok := decodeString(fields["name"]); ok {
		d.Name = &name
		updated = append(updated, "name")
	}
	if age, ok := decodeAge(fields["age"]); ok {
		d.Age = &age
		updated = append(updated, "age")
	}
	if gender, ok := decodeString(fields["gender"]); ok {
		d.Gender = &gender
		updated = append(updated, "gender")
	}
	return updated, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", false
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return "", false
	}
	return v, true
}

func decodeAge(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch age := v.(type) {
	case float64:
		if age < 0 || age != math.Trunc(age) {
			return 0, false
		}
		return int(age), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(age))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func mergeUtterances(state *entities.ClinicalState, candidates []candidateUtterance) (speakerUpdates, added int) {
	position := make(map[int]int, len(state.Utterances))
	for i, u := range state.Utterances {
		position[u.Index] = i
	}

	for _, c := range candidates {
		if c.Index == nil || *c.Index <= 0 {
			continue
		}
		idx := *c.Index
		speaker := entities.SpeakerUnknown
		hasSpeaker := false
		if c.Speaker != nil && entities.Speaker(*c.Speaker).Valid() {
			speaker = entities.Speaker(*c.Speaker)
			hasSpeaker = true
		}

		if pos, ok := position[idx]; ok {
			if hasSpeaker && state.Utterances[pos].Speaker != speaker {
				state.Utterances[pos].Speaker = speaker
				speakerUpdates++
			}
			continue
		}

		state.Utterances = append(state.Utterances, entities.UtteranceEntry{
			Index:       idx,
			UtteranceID: c.UtteranceID,
			Speaker:     speaker,
			Text:        c.Text,
			Timestamp:   c.Timestamp,
		})
		position[idx] = len(state.Utterances) - 1
		added++
	}

	if added > 0 {
		sort.SliceStable(state.Utterances, func(i, j int) bool {
			return state.Utterances[i].Index < state.Utterances[j].Index
		})
	}
	return speakerUpdates, added
}
