package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

func TestStatisticsRepositoryTasksByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatisticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"key", "total"}).AddRow("Verified", 2).AddRow("Assigned", 1))

	rows, err := repo.TasksByStatus(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, []models.CountRow{{Key: "Verified", Total: 2}, {Key: "Assigned", Total: 1}}, rows)
}

func TestStatisticsRepositoryTestCaseTaskStatuses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatisticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN uat_tasks t ON t.test_case_id = tc.id")).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"test_case_id", "status"}).AddRow("tc-1", "Completed").AddRow("tc-2", nil))

	rows, err := repo.TestCaseTaskStatuses(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Status)
	assert.Equal(t, models.TaskStatusCompleted, *rows[0].Status)
	assert.Nil(t, rows[1].Status)
}

func TestStatisticsRepositoryEmptyApplication(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatisticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM test_cases WHERE application_id = $1")).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("JOIN uat_tasks t ON t.id = br.task_id")).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"severity", "validation_status"}))

	total, err := repo.CountTestCases(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Zero(t, total)

	bugs, err := repo.BugAggregates(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Empty(t, bugs)
}
