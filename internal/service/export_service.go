package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/export"
)

// ExportFormat selects the rendered representation of a report.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

type finalReportSource interface {
	FinalReport(ctx context.Context, applicationID string) (*models.FinalReport, error)
}

type documentRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

// ExportResult is a rendered report ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders final reports for download.
type ExportService struct {
	reports finalReportSource
	csv     documentRenderer
	pdf     documentRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the stock CSV and PDF exporters.
func NewExportService(reports finalReportSource, logger *zap.Logger, csv, pdf documentRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{reports: reports, csv: csv, pdf: pdf, logger: logger}
}

// ExportFinalReport renders the final report of an application.
func (s *ExportService) ExportFinalReport(ctx context.Context, applicationID string, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}
	var renderer documentRenderer
	switch format {
	case ExportFormatCSV:
		renderer = s.csv
	case ExportFormatPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported export format",
			map[string]string{"format": string(format)})
	}

	report, err := s.reports.FinalReport(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.RenderDocument(finalReportDocument(report))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render report")
	}
	s.logger.Info("final report exported",
		zap.String("application_id", applicationID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(payload)),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("final_report_%s_%s.%s", sanitizeFilename(report.Application.Name), report.GeneratedAt.Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func finalReportDocument(r *models.FinalReport) export.Document {
	doc := export.Document{
		Title: "Final Report: " + r.Application.Name,
		Sections: []export.Section{
			{Title: "Application", Fields: []export.Field{
				{Label: "ID", Value: r.Application.ID},
				{Label: "Name", Value: r.Application.Name},
				{Label: "Platform", Value: string(r.Application.Platform)},
				{Label: "Status", Value: string(r.Application.Status)},
				{Label: "Testers", Value: fmt.Sprintf("%d / %d", r.Application.CurrentWorkers, r.Application.MaxTesters)},
			}},
			{Title: "Verdict", Fields: []export.Field{
				{Label: "Acceptance Status", Value: string(r.AcceptanceStatus)},
				{Label: "Reason", Value: r.AcceptanceReason},
				{Label: "Generated At", Value: r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			}},
			{Title: "Coverage", Fields: []export.Field{
				{Label: "Test Cases", Value: strconv.Itoa(r.Coverage.TotalTestCases)},
				{Label: "Completed", Value: strconv.Itoa(r.Coverage.CompletedTestCases)},
				{Label: "Completion", Value: fmt.Sprintf("%.2f%%", r.Coverage.CompletionPercentage)},
			}},
			{Title: "Bugs", Fields: []export.Field{
				{Label: "Total", Value: strconv.Itoa(r.Bugs.Total)},
				{Label: "Unresolved Critical", Value: strconv.Itoa(r.Bugs.UnresolvedCritical)},
				{Label: "Unresolved High", Value: strconv.Itoa(r.Bugs.UnresolvedHigh)},
			}},
			{Title: "Tasks", Fields: []export.Field{
				{Label: "Total", Value: strconv.Itoa(r.Tasks.Total)},
				{Label: "Distinct Workers", Value: strconv.Itoa(r.Tasks.DistinctWorkers)},
			}},
			{Title: "Policy", Fields: []export.Field{
				{Label: "Accept", Value: fmt.Sprintf("%.0f%%", r.Policy.AcceptThreshold)},
				{Label: "Provisional", Value: fmt.Sprintf("%.0f%%", r.Policy.ProvisionalThreshold)},
				{Label: "Conditional", Value: fmt.Sprintf("%.0f%%", r.Policy.ConditionalThreshold)},
			}},
		},
		Table: export.Dataset{Headers: []string{"Metric", "Key", "Count"}},
	}

	for _, sev := range models.AllSeverities() {
		doc.Table.Rows = append(doc.Table.Rows, countRow("bugs_by_severity", string(sev), r.Bugs.BySeverity[sev]))
	}
	for _, key := range sortedKeys(r.Bugs.ByValidationStatus) {
		doc.Table.Rows = append(doc.Table.Rows, countRow("bugs_by_validation_status", key, r.Bugs.ByValidationStatus[key]))
	}
	for _, status := range models.AllTaskStatuses() {
		doc.Table.Rows = append(doc.Table.Rows, countRow("tasks_by_status", string(status), r.Tasks.ByStatus[status]))
	}
	for _, key := range sortedKeys(r.Coverage.TestCasesByStatus) {
		doc.Table.Rows = append(doc.Table.Rows, countRow("test_cases_by_status", key, r.Coverage.TestCasesByStatus[key]))
	}
	return doc
}

func countRow(metric, key string, n int) map[string]string {
	return map[string]string{"Metric": metric, "Key": key, "Count": strconv.Itoa(n)}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
