package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

// memStore is an in-memory entity store. WithinTx snapshots state and
// restores it when fn fails, so tests observe rollback behaviour.
type memStore struct {
	mu              sync.Mutex
	seq             int
	clock           time.Time
	apps            map[string]models.Application
	testCases       map[string]models.TestCase
	tasks           map[string]models.UATTask
	bugs            map[string]models.BugReport
	bugValidations  []models.BugValidation
	taskValidations map[string]models.TaskValidation
	txCalls         int
	transitionErr   error
}

func newMemStore() *memStore {
	return &memStore{
		clock:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		apps:            map[string]models.Application{},
		testCases:       map[string]models.TestCase{},
		tasks:           map[string]models.UATTask{},
		bugs:            map[string]models.BugReport{},
		taskValidations: map[string]models.TaskValidation{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memSnapshot struct {
	apps            map[string]models.Application
	testCases       map[string]models.TestCase
	tasks           map[string]models.UATTask
	bugs            map[string]models.BugReport
	bugValidations  []models.BugValidation
	taskValidations map[string]models.TaskValidation
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.txCalls++
	snap := memSnapshot{
		apps:            copyMap(m.apps),
		testCases:       copyMap(m.testCases),
		tasks:           copyMap(m.tasks),
		bugs:            copyMap(m.bugs),
		bugValidations:  append([]models.BugValidation(nil), m.bugValidations...),
		taskValidations: copyMap(m.taskValidations),
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.apps, m.testCases, m.tasks = snap.apps, snap.testCases, snap.tasks
		m.bugs, m.bugValidations, m.taskValidations = snap.bugs, snap.bugValidations, snap.taskValidations
		m.mu.Unlock()
		return err
	}
	return nil
}

// seed helpers

func (m *memStore) addApp(status models.ApplicationStatus, maxTesters int) *models.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	app := models.Application{ID: m.nextID("app"), ClientID: "client-1", Name: "Shop", Platform: models.PlatformWeb,
		Status: status, MaxTesters: maxTesters, CreatedAt: m.tick()}
	m.apps[app.ID] = app
	return &app
}

func (m *memStore) addTestCase(appID string, priority models.Priority) *models.TestCase {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc := models.TestCase{ID: m.nextID("tc"), ApplicationID: appID, QAID: "qa-1", Title: "login",
		GivenContext: "a user", WhenAction: "logs in", ThenResult: "sees home", Priority: priority, CreatedAt: m.tick()}
	m.testCases[tc.ID] = tc
	return &tc
}

func (m *memStore) addTask(appID, testCaseID, workerID string, status models.TaskStatus) *models.UATTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := models.UATTask{ID: m.nextID("task"), ApplicationID: appID, TestCaseID: testCaseID, WorkerID: workerID,
		Status: status, Version: 1, CreatedAt: m.tick()}
	if status.IsExecuted() {
		result := "observed"
		task.ActualResult = &result
	}
	m.tasks[task.ID] = task
	return &task
}

func (m *memStore) addBug(taskID string, severity models.Severity) *models.BugReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	bug := models.BugReport{ID: m.nextID("bug"), TaskID: taskID, WorkerID: m.tasks[taskID].WorkerID,
		Title: "broken", Severity: severity, CreatedAt: m.tick()}
	m.bugs[bug.ID] = bug
	return &bug
}

func (m *memStore) task(id string) models.UATTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id]
}

func (m *memStore) latestVerdict(bugID string) *models.BugValidationStatus {
	for i := len(m.bugValidations) - 1; i >= 0; i-- {
		if m.bugValidations[i].BugReportID == bugID {
			return m.bugValidations[i].ValidationStatus
		}
	}
	return nil
}

func (m *memStore) sortedBugs(match func(models.BugReport) bool) []models.BugReport {
	out := make([]models.BugReport, 0)
	for _, b := range m.bugs {
		if match(b) {
			b.ValidationStatus = m.latestVerdict(b.ID)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// memTasks adapts memStore to the task store interfaces.
type memTasks struct{ *memStore }

func (s memTasks) FindByID(ctx context.Context, id string) (*models.UATTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (s memTasks) LockByID(ctx context.Context, id string) (*models.UATTask, error) {
	return s.FindByID(ctx, id)
}

func (s memTasks) List(ctx context.Context, filter models.UATTaskFilter) ([]models.UATTask, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UATTask, 0)
	for _, t := range s.tasks {
		if filter.WorkerID != "" && t.WorkerID != filter.WorkerID {
			continue
		}
		if filter.ApplicationID != "" && t.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s memTasks) Transition(ctx context.Context, task *models.UATTask, from models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return s.transitionErr
	}
	stored, ok := s.tasks[task.ID]
	if !ok || stored.Status != from || stored.Version != task.Version {
		return sql.ErrNoRows
	}
	task.Version++
	s.tasks[task.ID] = *task
	return nil
}

func (s memTasks) RecordExecution(ctx context.Context, task *models.UATTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tasks[task.ID]
	if !ok || stored.Status != models.TaskStatusInProgress || stored.Version != task.Version {
		return sql.ErrNoRows
	}
	task.Version++
	s.tasks[task.ID] = *task
	return nil
}

func (s memTasks) Create(ctx context.Context, task *models.UATTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = s.nextID("task")
	task.Version = 1
	task.CreatedAt = s.tick()
	s.tasks[task.ID] = *task
	return nil
}

func (s memTasks) CountActiveByWorker(ctx context.Context, workerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.WorkerID == workerID && t.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (s memTasks) LockWorker(ctx context.Context, workerID string) error { return nil }

func (s memTasks) ExistsForWorker(ctx context.Context, workerID, testCaseID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.WorkerID == workerID && t.TestCaseID == testCaseID {
			return true, nil
		}
	}
	return false, nil
}

func (s memTasks) WorkerInApplication(ctx context.Context, workerID, applicationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.WorkerID == workerID && t.ApplicationID == applicationID {
			return true, nil
		}
	}
	return false, nil
}

// memApps adapts memStore to the application store interfaces.
type memApps struct{ *memStore }

func (s memApps) FindByID(ctx context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s memApps) LockByID(ctx context.Context, id string) (*models.Application, error) {
	return s.FindByID(ctx, id)
}

func (s memApps) IncrementWorkers(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.CurrentWorkers >= a.MaxTesters {
		return sql.ErrNoRows
	}
	a.CurrentWorkers++
	s.apps[id] = a
	return nil
}

func (s memApps) Create(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = s.nextID("app")
	app.CreatedAt = s.tick()
	s.apps[app.ID] = *app
	return nil
}

func (s memApps) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Application, 0)
	for _, a := range s.apps {
		if filter.ClientID != "" && a.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (s memApps) Update(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; !ok || app.CurrentWorkers > app.MaxTesters {
		return sql.ErrNoRows
	}
	s.apps[app.ID] = *app
	return nil
}

func (s memApps) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok || a.Status != from {
		return sql.ErrNoRows
	}
	a.Status = to
	s.apps[id] = a
	return nil
}

// memTestCases adapts memStore to the test case interfaces.
type memTestCases struct{ *memStore }

func (s memTestCases) FindByID(ctx context.Context, id string) (*models.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.testCases[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &tc, nil
}

func (s memTestCases) byApplication(applicationID string) []models.TestCase {
	out := make([]models.TestCase, 0)
	for _, tc := range s.testCases {
		if tc.ApplicationID == applicationID {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s memTestCases) ListByApplication(ctx context.Context, applicationID string) ([]models.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byApplication(applicationID), nil
}

func (s memTestCases) NextForWorker(ctx context.Context, applicationID, workerID string) (*models.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tc := range s.byApplication(applicationID) {
		taken := false
		for _, t := range s.tasks {
			if t.TestCaseID == tc.ID && t.WorkerID == workerID {
				taken = true
				break
			}
		}
		if !taken {
			return &tc, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memTestCases) Create(ctx context.Context, tc *models.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc.ID = s.nextID("tc")
	if tc.Priority == "" {
		tc.Priority = models.PriorityMedium
	}
	tc.CreatedAt = s.tick()
	s.testCases[tc.ID] = *tc
	return nil
}

func (s memTestCases) Update(ctx context.Context, tc *models.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.testCases[tc.ID]; !ok {
		return sql.ErrNoRows
	}
	s.testCases[tc.ID] = *tc
	return nil
}

func (s memTestCases) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.testCases[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.testCases, id)
	return nil
}

func (s memTestCases) CountTasks(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.TestCaseID == id {
			n++
		}
	}
	return n, nil
}

// memBugs adapts memStore to the bug report interfaces.
type memBugs struct{ *memStore }

func (s memBugs) FindByID(ctx context.Context, id string) (*models.BugReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bugs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	b.ValidationStatus = s.latestVerdict(id)
	return &b, nil
}

func (s memBugs) ReadinessByTask(ctx context.Context, taskID string) ([]models.BugReadiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BugReadiness, 0)
	for _, b := range s.sortedBugs(func(b models.BugReport) bool { return b.TaskID == taskID }) {
		out = append(out, models.BugReadiness{BugReportID: b.ID, Title: b.Title, Severity: b.Severity, ValidationStatus: b.ValidationStatus})
	}
	return out, nil
}

func (s memBugs) Create(ctx context.Context, bug *models.BugReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bug.ID = s.nextID("bug")
	bug.CreatedAt = s.tick()
	s.bugs[bug.ID] = *bug
	return nil
}

func (s memBugs) ListByTask(ctx context.Context, taskID string) ([]models.BugReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBugs(func(b models.BugReport) bool { return b.TaskID == taskID }), nil
}

func (s memBugs) Update(ctx context.Context, bug *models.BugReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.bugValidations {
		if v.BugReportID == bug.ID {
			return sql.ErrNoRows
		}
	}
	s.bugs[bug.ID] = *bug
	return nil
}

func (s memBugs) HasValidation(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.bugValidations {
		if v.BugReportID == id {
			return true, nil
		}
	}
	return false, nil
}

// memValidations adapts memStore to the validation store interface.
type memValidations struct{ *memStore }

func (s memValidations) CreateBugValidation(ctx context.Context, v *models.BugValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.nextID("bv")
	v.CreatedAt = s.tick()
	s.bugValidations = append(s.bugValidations, *v)
	return nil
}

func (s memValidations) FindBugValidation(ctx context.Context, id string) (*models.BugValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.bugValidations {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memValidations) ListBugValidations(ctx context.Context, bugReportID string) ([]models.BugValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BugValidation, 0)
	for i := len(s.bugValidations) - 1; i >= 0; i-- {
		if s.bugValidations[i].BugReportID == bugReportID {
			out = append(out, s.bugValidations[i])
		}
	}
	return out, nil
}

func (s memValidations) CompleteBugValidation(ctx context.Context, v *models.BugValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bugValidations {
		if s.bugValidations[i].ID == v.ID {
			if s.bugValidations[i].ValidationStatus != nil {
				return sql.ErrNoRows
			}
			// a settled row moves to the end, like the seq bump in postgres
			rest := append(s.bugValidations[:i:i], s.bugValidations[i+1:]...)
			s.bugValidations = append(rest, *v)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memValidations) UpdateBugValidationComments(ctx context.Context, id, comments string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bugValidations {
		if s.bugValidations[i].ID == id {
			s.bugValidations[i].Comments = comments
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memValidations) UpsertTaskValidation(ctx context.Context, v *models.TaskValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.taskValidations[v.TaskID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		v.ID = s.nextID("tv")
		v.CreatedAt = s.tick()
	}
	s.taskValidations[v.TaskID] = *v
	return nil
}

func (s memValidations) FindTaskValidation(ctx context.Context, taskID string) (*models.TaskValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.taskValidations[taskID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

// memStats answers the aggregate queries from memStore.
type memStats struct{ *memStore }

func (s memStats) CountTestCases(ctx context.Context, applicationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tc := range s.testCases {
		if tc.ApplicationID == applicationID {
			n++
		}
	}
	return n, nil
}

func (s memStats) TasksByStatus(ctx context.Context, applicationID string) ([]models.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, t := range s.tasks {
		if t.ApplicationID == applicationID {
			counts[string(t.Status)]++
		}
	}
	rows := make([]models.CountRow, 0, len(counts))
	for k, v := range counts {
		rows = append(rows, models.CountRow{Key: k, Total: v})
	}
	return rows, nil
}

func (s memStats) DistinctWorkers(ctx context.Context, applicationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	workers := map[string]struct{}{}
	for _, t := range s.tasks {
		if t.ApplicationID == applicationID {
			workers[t.WorkerID] = struct{}{}
		}
	}
	return len(workers), nil
}

func (s memStats) BugAggregates(ctx context.Context, applicationID string) ([]models.BugAggregateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]models.BugAggregateRow, 0)
	for _, b := range s.bugs {
		if s.tasks[b.TaskID].ApplicationID == applicationID {
			rows = append(rows, models.BugAggregateRow{Severity: b.Severity, ValidationStatus: s.latestVerdict(b.ID)})
		}
	}
	return rows, nil
}

func (s memStats) TestCaseTaskStatuses(ctx context.Context, applicationID string) ([]models.TestCaseTaskRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]models.TestCaseTaskRow, 0)
	for _, tc := range s.testCases {
		if tc.ApplicationID != applicationID {
			continue
		}
		found := false
		for _, t := range s.tasks {
			if t.TestCaseID == tc.ID {
				status := t.Status
				rows = append(rows, models.TestCaseTaskRow{TestCaseID: tc.ID, Status: &status})
				found = true
			}
		}
		if !found {
			rows = append(rows, models.TestCaseTaskRow{TestCaseID: tc.ID})
		}
	}
	return rows, nil
}

// auditSpy collects recorded audit entries.
type auditSpy struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log *models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

// engine wires every workflow service over one memStore.
type engine struct {
	store      *memStore
	audit      *auditSpy
	metrics    *MetricsService
	readiness  *ReadinessService
	lifecycle  *TaskLifecycleService
	validation *ValidationService
	assignment *AssignmentService
	statistics *StatisticsService
}

func newEngine() *engine {
	store := newMemStore()
	audit := &auditSpy{}
	metrics := NewMetricsService()
	readiness := NewReadinessService(memTasks{store}, memBugs{store}, metrics, nil)
	lifecycle := NewTaskLifecycleService(TaskLifecycleParams{
		Tx:          store,
		Tasks:       memTasks{store},
		Validations: memValidations{store},
		Readiness:   readiness,
		Audit:       audit,
		Metrics:     metrics,
	})
	validation := NewValidationService(ValidationParams{
		Tx:          store,
		Tasks:       memTasks{store},
		Bugs:        memBugs{store},
		Validations: memValidations{store},
		Readiness:   readiness,
		Lifecycle:   lifecycle,
		Audit:       audit,
		Metrics:     metrics,
	})
	assignment := NewAssignmentService(AssignmentParams{
		Tx:           store,
		Tasks:        memTasks{store},
		TestCases:    memTestCases{store},
		Applications: memApps{store},
		Audit:        audit,
		Metrics:      metrics,
	})
	statistics := NewStatisticsService(memApps{store}, memStats{store}, DefaultAcceptancePolicy(), metrics, nil)
	return &engine{
		store:      store,
		audit:      audit,
		metrics:    metrics,
		readiness:  readiness,
		lifecycle:  lifecycle,
		validation: validation,
		assignment: assignment,
		statistics: statistics,
	}
}

var (
	workerActor = models.Actor{ID: "worker-1", Role: models.RoleCrowdworker}
	qaActor     = models.Actor{ID: "qa-1", Role: models.RoleQASpecialist}
	adminActor  = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

func verdict(s models.BugValidationStatus) *models.BugValidationStatus { return &s }
