package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/tracing"
)

type statisticsApplicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

type statisticsReader interface {
	CountTestCases(ctx context.Context, applicationID string) (int, error)
	TasksByStatus(ctx context.Context, applicationID string) ([]models.CountRow, error)
	DistinctWorkers(ctx context.Context, applicationID string) (int, error)
	BugAggregates(ctx context.Context, applicationID string) ([]models.BugAggregateRow, error)
	TestCaseTaskStatuses(ctx context.Context, applicationID string) ([]models.TestCaseTaskRow, error)
}

// StatisticsService computes read-only aggregates over an application. Every
// call queries fresh data; nothing here is cached.
type StatisticsService struct {
	apps    statisticsApplicationReader
	stats   statisticsReader
	policy  models.AcceptancePolicy
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatisticsService constructs the aggregation engine.
func NewStatisticsService(apps statisticsApplicationReader, stats statisticsReader, policy models.AcceptancePolicy, metrics *MetricsService, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{
		apps:    apps,
		stats:   stats,
		policy:  normalizePolicy(policy),
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the thresholds in effect.
func (s *StatisticsService) Policy() models.AcceptancePolicy {
	return s.policy
}

// ApplicationStatistics summarises bugs, tasks and workers.
func (s *StatisticsService) ApplicationStatistics(ctx context.Context, applicationID string) (*models.ApplicationStatistics, error) {
	ctx, span := tracing.StartSpan(ctx, "statistics.application", attribute.String("application.id", applicationID))
	var err error
	defer func() { tracing.End(span, err) }()

	if _, err = s.apps.FindByID(ctx, applicationID); err != nil {
		err = lookupFailed(err, "application")
		return nil, err
	}
	stats, _, err := s.collectStatistics(ctx, applicationID)
	return stats, err
}

func (s *StatisticsService) collectStatistics(ctx context.Context, applicationID string) (*models.ApplicationStatistics, models.BugSummary, error) {
	totalCases, err := s.stats.CountTestCases(ctx, applicationID)
	if err != nil {
		return nil, models.BugSummary{}, appErrors.Internal(err, "failed to count test cases")
	}
	taskRows, err := s.stats.TasksByStatus(ctx, applicationID)
	if err != nil {
		return nil, models.BugSummary{}, appErrors.Internal(err, "failed to count tasks")
	}
	workers, err := s.stats.DistinctWorkers(ctx, applicationID)
	if err != nil {
		return nil, models.BugSummary{}, appErrors.Internal(err, "failed to count workers")
	}
	bugRows, err := s.stats.BugAggregates(ctx, applicationID)
	if err != nil {
		return nil, models.BugSummary{}, appErrors.Internal(err, "failed to aggregate bugs")
	}

	tasksByStatus, totalTasks := countTasks(taskRows)
	bugs := summariseBugs(bugRows)
	return &models.ApplicationStatistics{
		ApplicationID:          applicationID,
		TotalTestCases:         totalCases,
		TotalTasks:             totalTasks,
		TotalBugReports:        bugs.Total,
		DistinctWorkers:        workers,
		BugsBySeverity:         bugs.BySeverity,
		BugsByValidationStatus: bugs.ByValidationStatus,
		TasksByStatus:          tasksByStatus,
		GeneratedAt:            s.now(),
	}, bugs, nil
}

// ApplicationProgress reports how many test cases have been executed.
func (s *StatisticsService) ApplicationProgress(ctx context.Context, applicationID string) (*models.ApplicationProgress, error) {
	if _, err := s.apps.FindByID(ctx, applicationID); err != nil {
		return nil, lookupFailed(err, "application")
	}
	return s.collectProgress(ctx, applicationID)
}

func (s *StatisticsService) collectProgress(ctx context.Context, applicationID string) (*models.ApplicationProgress, error) {
	rows, err := s.stats.TestCaseTaskStatuses(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load test case progress")
	}
	progress := ComputeProgress(rows)
	progress.ApplicationID = applicationID
	return &progress, nil
}

// ComputeProgress classifies each test case by its most advanced task and
// derives the completion percentage. A test case counts as completed once
// any of its tasks is Completed or Verified.
func ComputeProgress(rows []models.TestCaseTaskRow) models.ApplicationProgress {
	best := make(map[string]models.TaskStatus)
	order := make([]string, 0)
	for _, row := range rows {
		current, seen := best[row.TestCaseID]
		if !seen {
			order = append(order, row.TestCaseID)
			best[row.TestCaseID] = ""
		}
		if row.Status != nil && row.Status.Rank() > current.Rank() {
			best[row.TestCaseID] = *row.Status
		}
	}

	byStatus := map[string]int{models.NotStarted: 0}
	for _, status := range models.AllTaskStatuses() {
		byStatus[string(status)] = 0
	}
	completed := 0
	for _, id := range order {
		status := best[id]
		if status == "" {
			byStatus[models.NotStarted]++
			continue
		}
		byStatus[string(status)]++
		if status == models.TaskStatusCompleted || status == models.TaskStatusVerified {
			completed++
		}
	}

	return models.ApplicationProgress{
		TotalTestCases:     len(order),
		CompletedTestCases: completed,
		ProgressPercentage: percentage(completed, len(order)),
		TestCasesByStatus:  byStatus,
	}
}

// FinalReport assembles coverage, bug and task summaries and the acceptance verdict.
func (s *StatisticsService) FinalReport(ctx context.Context, applicationID string) (*models.FinalReport, error) {
	ctx, span := tracing.StartSpan(ctx, "statistics.final_report", attribute.String("application.id", applicationID))
	var err error
	defer func() { tracing.End(span, err) }()

	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		err = lookupFailed(err, "application")
		return nil, err
	}
	stats, bugs, err := s.collectStatistics(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	progress, err := s.collectProgress(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	report := &models.FinalReport{
		Application: *app,
		Coverage: models.TestCoverage{
			TotalTestCases:       progress.TotalTestCases,
			CompletedTestCases:   progress.CompletedTestCases,
			CompletionPercentage: progress.ProgressPercentage,
			TestCasesByStatus:    progress.TestCasesByStatus,
		},
		Bugs: bugs,
		Tasks: models.TaskSummary{
			Total:           stats.TotalTasks,
			ByStatus:        stats.TasksByStatus,
			DistinctWorkers: stats.DistinctWorkers,
		},
		Policy:      s.policy,
		GeneratedAt: s.now(),
	}
	report.AcceptanceStatus, report.AcceptanceReason = DecideAcceptance(s.policy, progress.ProgressPercentage, bugs)
	s.metrics.RecordVerdict(string(report.AcceptanceStatus))
	s.logger.Info("final report generated",
		zap.String("application_id", applicationID),
		zap.String("acceptance_status", string(report.AcceptanceStatus)),
	)
	return report, nil
}

func countTasks(rows []models.CountRow) (map[models.TaskStatus]int, int) {
	byStatus := make(map[models.TaskStatus]int, len(models.AllTaskStatuses()))
	for _, status := range models.AllTaskStatuses() {
		byStatus[status] = 0
	}
	total := 0
	for _, row := range rows {
		byStatus[models.TaskStatus(row.Key)] += row.Total
		total += row.Total
	}
	return byStatus, total
}

// summariseBugs buckets bugs by severity and latest verdict. Anything not
// judged Invalid stays unresolved.
func summariseBugs(rows []models.BugAggregateRow) models.BugSummary {
	summary := models.BugSummary{
		Total:      len(rows),
		BySeverity: make(map[models.Severity]int),
		ByValidationStatus: map[string]int{
			string(models.BugValidationValid):         0,
			string(models.BugValidationInvalid):       0,
			string(models.BugValidationNeedsMoreInfo): 0,
			models.Unvalidated:                        0,
		},
	}
	for _, sev := range models.AllSeverities() {
		summary.BySeverity[sev] = 0
	}
	for _, row := range rows {
		summary.BySeverity[row.Severity]++
		summary.ByValidationStatus[verdictBucket(row.ValidationStatus)]++
		if row.ValidationStatus != nil && *row.ValidationStatus == models.BugValidationInvalid {
			continue
		}
		switch row.Severity {
		case models.SeverityCritical:
			summary.UnresolvedCritical++
		case models.SeverityHigh:
			summary.UnresolvedHigh++
		}
	}
	return summary
}

func verdictBucket(status *models.BugValidationStatus) string {
	if status == nil {
		return models.Unvalidated
	}
	return string(*status)
}

func percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(part) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
