package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// TextUploader is the part of MinIOClient the report store needs
type TextUploader interface {
	UploadText(ctx context.Context, objectName, content, contentType string) error
}

// ReportStore renders the clinical report as markdown and uploads it next
// to the session's other outputs
type ReportStore struct {
	uploader TextUploader
	logger   *zap.Logger
}

// NewReportStore creates a report store
func NewReportStore(uploader TextUploader, logger *zap.Logger) *ReportStore {
	return &ReportStore{uploader: uploader, logger: logger}
}

// ReportObjectName is the object key of a session's report
func ReportObjectName(sessionID, sessionDate string) string {
	return path.Join("sessions", sessionDate, sessionID, "clinical_report.md")
}

// StoreReport renders and uploads the report, overwriting any previous
// version, and returns its object key
func (s *ReportStore) StoreReport(ctx context.Context, sessionID, sessionDate string, state entities.ClinicalState, report string) (string, error) {
	doc, err := RenderReport(sessionID, sessionDate, state, report)
	if err != nil {
		return "", err
	}

	name := ReportObjectName(sessionID, sessionDate)
	if err := s.uploader.UploadText(ctx, name, doc, "text/markdown; charset=utf-8"); err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("📄 Clinical report stored",
			zap.String("session_id", sessionID),
			zap.String("object", name),
		)
	}
	return name, nil
}

type reportSection struct {
	Title string
	Items []string
}

type reportView struct {
	SessionID   string
	SessionDate string
	Name        string
	Age         string
	Gender      string
	Sections    []reportSection
	Report      string
}

var reportTemplate = template.Must(template.New("report").Parse(`# Clinical Report (Draft)

Session: {{.SessionID}}
Date: {{.SessionDate}}

## Patient

- Name: {{.Name}}
- Age: {{.Age}}
- Gender: {{.Gender}}
{{range .Sections}}
## {{.Title}}
{{if .Items}}{{range .Items}}
- {{.}}{{end}}{{else}}
None recorded.{{end}}
{{end}}
## Clinical Note

{{if .Report}}{{.Report}}{{else}}Report unavailable.{{end}}

---
Draft generated for clinician review.
`))

// RenderReport renders the markdown document for a report
func RenderReport(sessionID, sessionDate string, state entities.ClinicalState, report string) (string, error) {
	view := reportView{
		SessionID:   sessionID,
		SessionDate: sessionDate,
		Name:        "unknown",
		Age:         "unknown",
		Gender:      "unknown",
		Report:      strings.TrimSpace(report),
	}
	if p := state.Patient; p.Name != nil {
		view.Name = *p.Name
	}
	if p := state.Patient; p.Age != nil {
		view.Age = fmt.Sprint(*p.Age)
	}
	if p := state.Patient; p.Gender != nil {
		view.Gender = *p.Gender
	}

	titles := map[entities.Section]string{
		entities.SectionSymptoms:       "Symptoms",
		entities.SectionMedications:    "Medications",
		entities.SectionDiagnosis:      "Diagnosis",
		entities.SectionAdvice:         "Advice",
		entities.SectionInvestigations: "Investigations",
		entities.SectionTests:          "Tests",
	}
	for _, sec := range entities.ClinicalSections {
		view.Sections = append(view.Sections, reportSection{
			Title: titles[sec],
			Items: describe(*state.Section(sec)),
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// describe renders entries as "name (key: value, ...)"
func describe(entries entities.Entries) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		label := e.Label()
		if !e.IsObject() {
			out = append(out, label)
			continue
		}

		attrs := e.Attrs()
		var extras []string
		for _, key := range []string{"duration", "dosage", "frequency", "value"} {
			if v, ok := attrs[key]; ok && v != nil && v != "" && fmt.Sprint(v) != label {
				extras = append(extras, fmt.Sprintf("%s: %v", key, v))
			}
		}
		if len(extras) > 0 {
			label += " (" + strings.Join(extras, ", ") + ")"
		}
		out = append(out, label)
	}
	return out
}
