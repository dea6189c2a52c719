package entities

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEntry is returned when a section item is neither a string nor a JSON object
var ErrInvalidEntry = errors.New("section entry must be a string or an object")

// Section names a part of the clinical record
type Section string

const (
	SectionPatient        Section = "patient"
	SectionUtterances     Section = "utterances"
	SectionSymptoms       Section = "symptoms"
	SectionMedications    Section = "medications"
	SectionDiagnosis      Section = "diagnosis"
	SectionAdvice         Section = "advice"
	SectionInvestigations Section = "investigations"
	SectionTests          Section = "tests"
)

// ClinicalSections lists the list-valued clinical sections in their canonical order
var ClinicalSections = []Section{
	SectionSymptoms,
	SectionMedications,
	SectionDiagnosis,
	SectionAdvice,
	SectionInvestigations,
	SectionTests,
}

// IsClinical reports whether the section is one of the list-valued clinical sections
func (s Section) IsClinical() bool {
	for _, c := range ClinicalSections {
		if c == s {
			return true
		}
	}
	return false
}

// Valid reports whether the section is recognized at all
func (s Section) Valid() bool {
	return s == SectionPatient || s == SectionUtterances || s.IsClinical()
}

// Entry is one item of a clinical section. The extraction service returns plain
// strings for some sections (diagnosis, advice) and objects for others
// (symptoms with duration, medications with dosage), so an entry holds either.
type Entry struct {
	text  string
	attrs map[string]any
}

// TextEntry builds a scalar entry
func TextEntry(text string) Entry {
	return Entry{text: text}
}

// ObjectEntry builds an object entry. The map is copied.
func ObjectEntry(attrs map[string]any) Entry {
	return Entry{attrs: cloneAttrs(attrs)}
}

// IsObject reports whether the entry is an object
func (e Entry) IsObject() bool {
	return e.attrs != nil
}

// Text returns the scalar value (empty for objects)
func (e Entry) Text() string {
	return e.text
}

// Attr returns an object attribute
func (e Entry) Attr(key string) (any, bool) {
	if e.attrs == nil {
		return nil, false
	}
	v, ok := e.attrs[key]
	return v, ok
}

// Attrs returns a copy of the object attributes (nil for scalars)
func (e Entry) Attrs() map[string]any {
	return cloneAttrs(e.attrs)
}

// Name returns the entry's display name: the "name" attribute of an object,
// or the scalar value itself.
func (e Entry) Name() string {
	if e.attrs == nil {
		return e.text
	}
	if name, ok := e.attrs["name"].(string); ok {
		return name
	}
	return ""
}

// Label is the best human-readable rendering of the entry: its name, value
// or label attribute, falling back to its JSON form.
func (e Entry) Label() string {
	if e.attrs == nil {
		return e.text
	}
	for _, key := range []string{"name", "value", "label"} {
		if v, ok := e.attrs[key]; ok && v != nil && v != "" {
			return fmt.Sprint(v)
		}
	}
	return string(e.canonical())
}

// Key identifies the entry for modify edits and carry-forward during merges.
// Entries without a name are identified by their full structure.
func (e Entry) Key() string {
	if name := e.Name(); name != "" {
		return name
	}
	return string(e.canonical())
}

// Equal reports structural equality
func (e Entry) Equal(other Entry) bool {
	return bytes.Equal(e.canonical(), other.canonical())
}

func (e Entry) canonical() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}

// Clone returns a deep copy
func (e Entry) Clone() Entry {
	return Entry{text: e.text, attrs: cloneAttrs(e.attrs)}
}

// MarshalJSON implements json.Marshaler
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.attrs != nil {
		return json.Marshal(e.attrs)
	}
	return json.Marshal(e.text)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Entry) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		*e = Entry{text: val}
	case map[string]any:
		*e = Entry{attrs: val}
	default:
		return ErrInvalidEntry
	}
	return nil
}

// Entries is an ordered section value
type Entries []Entry

// Clone returns a deep copy that is never nil
func (es Entries) Clone() Entries {
	out := make(Entries, len(es))
	for i, e := range es {
		out[i] = e.Clone()
	}
	return out
}

// IndexOfKey returns the position of the first entry with the given key, or -1
func (es Entries) IndexOfKey(key string) int {
	for i, e := range es {
		if e.Key() == key {
			return i
		}
	}
	return -1
}

// Names returns the non-empty names of all entries in order
func (es Entries) Names() []string {
	names := make([]string, 0, len(es))
	for _, e := range es {
		if n := e.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Labels returns the non-empty labels of all entries in order
func (es Entries) Labels() []string {
	labels := make([]string, 0, len(es))
	for _, e := range es {
		if l := strings.TrimSpace(e.Label()); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// Demographics holds patient identity fields; nil means unknown
type Demographics struct {
	Name   *string `json:"name"`
	Age    *int    `json:"age"`
	Gender *string `json:"gender"`
}

// Clone returns a deep copy
func (d Demographics) Clone() Demographics {
	out := Demographics{}
	if d.Name != nil {
		v := *d.Name
		out.Name = &v
	}
	if d.Age != nil {
		v := *d.Age
		out.Age = &v
	}
	if d.Gender != nil {
		v := *d.Gender
		out.Gender = &v
	}
	return out
}

// UtteranceEntry is the clinical-record view of a transcribed utterance
type UtteranceEntry struct {
	Index       int     `json:"index"`
	UtteranceID string  `json:"utterance_id,omitempty"`
	Speaker     Speaker `json:"speaker"`
	Text        string  `json:"text"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

// ClinicalState is the structured record derived from a conversation.
// Every section is always present; a zero value must go through
// NewClinicalState or Normalize before use.
type ClinicalState struct {
	Patient        Demographics     `json:"patient"`
	Utterances     []UtteranceEntry `json:"utterances"`
	Symptoms       Entries          `json:"symptoms"`
	Medications    Entries          `json:"medications"`
	Diagnosis      Entries          `json:"diagnosis"`
	Advice         Entries          `json:"advice"`
	Investigations Entries          `json:"investigations"`
	Tests          Entries          `json:"tests"`
}

// NewClinicalState returns the base state with every section present and empty
func NewClinicalState() ClinicalState {
	s := ClinicalState{}
	s.Normalize()
	return s
}

// Normalize replaces nil sections with empty ones
func (s *ClinicalState) Normalize() {
	if s.Utterances == nil {
		s.Utterances = []UtteranceEntry{}
	}
	for _, sec := range ClinicalSections {
		p := s.Section(sec)
		if *p == nil {
			*p = Entries{}
		}
	}
}

// Section returns a pointer to a list-valued clinical section, or nil when
// the section is not list-valued.
func (s *ClinicalState) Section(sec Section) *Entries {
	switch sec {
	case SectionSymptoms:
		return &s.Symptoms
	case SectionMedications:
		return &s.Medications
	case SectionDiagnosis:
		return &s.Diagnosis
	case SectionAdvice:
		return &s.Advice
	case SectionInvestigations:
		return &s.Investigations
	case SectionTests:
		return &s.Tests
	}
	return nil
}

// Clone returns a deep copy
func (s ClinicalState) Clone() ClinicalState {
	out := ClinicalState{
		Patient:    s.Patient.Clone(),
		Utterances: append([]UtteranceEntry{}, s.Utterances...),
	}
	for _, sec := range ClinicalSections {
		*out.Section(sec) = s.Section(sec).Clone()
	}
	return out
}

// MarshalJSON emits every section, never null
func (s ClinicalState) MarshalJSON() ([]byte, error) {
	type alias ClinicalState
	s.Normalize()
	return json.Marshal(alias(s))
}

func cloneAttrs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		out := make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		out = make(map[string]any, len(in))
		for k, v := range in {
			out[k] = v
		}
	}
	return out
}
