package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

func TestProgressWithoutTestCasesIsZero(t *testing.T) {
	e := newEngine()
	app := e.store.addApp(models.ApplicationStatusActive, 3)

	progress, err := e.statistics.ApplicationProgress(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Zero(t, progress.ProgressPercentage)
	assert.Zero(t, progress.TotalTestCases)
	assert.Equal(t, 0, progress.TestCasesByStatus[models.NotStarted])

	stats, err := e.statistics.ApplicationStatistics(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalBugReports)
	assert.Equal(t, 0, stats.BugsBySeverity[models.SeverityCritical])
	assert.Equal(t, 0, stats.TasksByStatus[models.TaskStatusAssigned])
}

func TestProgressClassifiesByMostAdvancedTask(t *testing.T) {
	e := newEngine()
	app := e.store.addApp(models.ApplicationStatusActive, 5)
	done := e.store.addTestCase(app.ID, models.PriorityHigh)
	e.store.addTask(app.ID, done.ID, "w1", models.TaskStatusAssigned)
	e.store.addTask(app.ID, done.ID, "w2", models.TaskStatusVerified)
	busy := e.store.addTestCase(app.ID, models.PriorityMedium)
	e.store.addTask(app.ID, busy.ID, "w1", models.TaskStatusInProgress)
	e.store.addTestCase(app.ID, models.PriorityLow)
	e.store.addTestCase(app.ID, models.PriorityLow)

	progress, err := e.statistics.ApplicationProgress(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.TotalTestCases)
	assert.Equal(t, 1, progress.CompletedTestCases)
	assert.InDelta(t, 25.0, progress.ProgressPercentage, 0.001)
	assert.Equal(t, 1, progress.TestCasesByStatus[string(models.TaskStatusVerified)])
	assert.Equal(t, 1, progress.TestCasesByStatus[string(models.TaskStatusInProgress)])
	assert.Equal(t, 2, progress.TestCasesByStatus[models.NotStarted])
}

func TestStatisticsBucketsLatestVerdict(t *testing.T) {
	e := newEngine()
	task := seedTask(e, models.TaskStatusCompleted)
	ctx := context.Background()
	a := e.store.addBug(task.ID, models.SeverityCritical)
	b := e.store.addBug(task.ID, models.SeverityLow)
	e.store.addBug(task.ID, models.SeverityLow)
	_, err := e.validation.RecordBugValidation(ctx, qaActor, bugRequest(a.ID, models.BugValidationValid))
	require.NoError(t, err)
	_, err = e.validation.RecordBugValidation(ctx, qaActor, bugRequest(a.ID, models.BugValidationInvalid))
	require.NoError(t, err)
	_, err = e.validation.RecordBugValidation(ctx, qaActor, bugRequest(b.ID, models.BugValidationNeedsMoreInfo))
	require.NoError(t, err)

	stats, err := e.statistics.ApplicationStatistics(ctx, task.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalBugReports)
	assert.Equal(t, 1, stats.TotalTasks)
	assert.Equal(t, 1, stats.DistinctWorkers)
	assert.Equal(t, 2, stats.BugsBySeverity[models.SeverityLow])
	assert.Equal(t, map[string]int{
		"Valid":           0,
		"Invalid":         1,
		"Needs More Info": 1,
		models.Unvalidated: 1,
	}, stats.BugsByValidationStatus)
}

func TestStatisticsUnknownApplication(t *testing.T) {
	e := newEngine()
	_, err := e.statistics.ApplicationStatistics(context.Background(), "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound))
	_, err = e.statistics.FinalReport(context.Background(), "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound))
}

func TestFinalReportRejectsUnresolvedCritical(t *testing.T) {
	e := newEngine()
	app := e.store.addApp(models.ApplicationStatusActive, 5)
	tc := e.store.addTestCase(app.ID, models.PriorityHigh)
	task := e.store.addTask(app.ID, tc.ID, workerActor.ID, models.TaskStatusVerified)
	e.store.addBug(task.ID, models.SeverityCritical)

	report, err := e.statistics.FinalReport(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, report.Coverage.CompletionPercentage)
	assert.Equal(t, 1, report.Bugs.UnresolvedCritical)
	assert.Equal(t, models.AcceptanceRejected, report.AcceptanceStatus)
	assert.Equal(t, DefaultAcceptancePolicy(), report.Policy)
}

func TestFinalReportProvisionalAt95Percent(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	app := e.store.addApp(models.ApplicationStatusActive, 50)
	for i := 0; i < 20; i++ {
		tc := e.store.addTestCase(app.ID, models.PriorityMedium)
		if i < 19 {
			task := e.store.addTask(app.ID, tc.ID, workerActor.ID, models.TaskStatusCompleted)
			if i == 0 {
				bug := e.store.addBug(task.ID, models.SeverityHigh)
				_, err := e.validation.RecordBugValidation(ctx, qaActor, bugRequest(bug.ID, models.BugValidationInvalid))
				require.NoError(t, err)
				e.store.addBug(task.ID, models.SeverityLow)
			}
		}
	}

	report, err := e.statistics.FinalReport(ctx, app.ID)
	require.NoError(t, err)
	assert.InDelta(t, 95.0, report.Coverage.CompletionPercentage, 0.001)
	assert.Zero(t, report.Bugs.UnresolvedCritical)
	assert.Zero(t, report.Bugs.UnresolvedHigh)
	assert.Equal(t, models.AcceptanceProvisional, report.AcceptanceStatus)
	assert.Equal(t, 19, report.Tasks.Total)
}

func TestDecideAcceptanceOrder(t *testing.T) {
	policy := DefaultAcceptancePolicy()
	cases := []struct {
		name       string
		completion float64
		bugs       models.BugSummary
		want       models.AcceptanceStatus
	}{
		{"critical beats full completion", 100, models.BugSummary{UnresolvedCritical: 1, UnresolvedHigh: 2}, models.AcceptanceRejected},
		{"high forces rework", 100, models.BugSummary{UnresolvedHigh: 1}, models.AcceptanceRework},
		{"low completion", 69.9, models.BugSummary{}, models.AcceptanceRework},
		{"full", 100, models.BugSummary{}, models.AcceptanceAccept},
		{"provisional", 90, models.BugSummary{}, models.AcceptanceProvisional},
		{"conditional", 70, models.BugSummary{}, models.AcceptanceConditional},
		{"empty application", 0, models.BugSummary{}, models.AcceptanceRework},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := DecideAcceptance(policy, tc.completion, tc.bugs)
			assert.Equal(t, tc.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestNormalizePolicyFillsDefaults(t *testing.T) {
	p := normalizePolicy(models.AcceptancePolicy{ProvisionalThreshold: 80})
	assert.Equal(t, 100.0, p.AcceptThreshold)
	assert.Equal(t, 80.0, p.ProvisionalThreshold)
	assert.Equal(t, 70.0, p.ConditionalThreshold)
}
