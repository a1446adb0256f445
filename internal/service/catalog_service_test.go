package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/dto"
	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
)

// mapCache is a JSON-backed CacheRepository.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *mapCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

var clientActor = models.Actor{ID: "client-1", Role: models.RoleClient}

func intPtr(n int) *int { return &n }

func TestApplicationLifecycle(t *testing.T) {
	store := newMemStore()
	cache := newMapCache()
	audit := &auditSpy{}
	svc := NewApplicationService(memApps{store}, NewCacheService(cache, nil, time.Minute, nil, true), audit, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, workerActor, dto.CreateApplicationRequest{Name: "Shop", Platform: models.PlatformWeb, MaxTesters: 3})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))
	_, err = svc.Create(ctx, clientActor, dto.CreateApplicationRequest{Name: "Shop", Platform: "desktop", MaxTesters: 3})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation))

	app, err := svc.Create(ctx, clientActor, dto.CreateApplicationRequest{Name: "Shop", Platform: models.PlatformWeb, MaxTesters: 3})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, clientActor.ID, app.ClientID)

	got, err := svc.Get(ctx, clientActor, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
	assert.True(t, cache.has(applicationCacheKey(app.ID)))

	_, err = svc.Get(ctx, models.Actor{ID: "client-2", Role: models.RoleClient}, app.ID)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))

	_, err = svc.UpdateStatus(ctx, clientActor, app.ID, dto.UpdateApplicationStatusRequest{Status: models.ApplicationStatusCompleted})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrIllegalTransition))

	active, err := svc.UpdateStatus(ctx, clientActor, app.ID, dto.UpdateApplicationStatusRequest{Status: models.ApplicationStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusActive, active.Status)
	assert.False(t, cache.has(applicationCacheKey(app.ID)))

	assert.Equal(t, []string{models.AuditActionApplicationCreate, models.AuditActionApplicationStatus}, audit.actions())
}

func TestApplicationCapacityCannotDropBelowWorkers(t *testing.T) {
	store := newMemStore()
	svc := NewApplicationService(memApps{store}, nil, nil, nil, nil)
	app := store.addApp(models.ApplicationStatusActive, 3)
	store.mu.Lock()
	a := store.apps[app.ID]
	a.CurrentWorkers = 2
	store.apps[app.ID] = a
	store.mu.Unlock()

	_, err := svc.Update(context.Background(), clientActor, app.ID, dto.UpdateApplicationRequest{MaxTesters: intPtr(1)})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed))

	updated, err := svc.Update(context.Background(), clientActor, app.ID, dto.UpdateApplicationRequest{MaxTesters: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxTesters)

	_, err = svc.Update(context.Background(), models.Actor{ID: "client-2", Role: models.RoleClient}, app.ID, dto.UpdateApplicationRequest{MaxTesters: intPtr(5)})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))
}

func TestApplicationListScopesClients(t *testing.T) {
	store := newMemStore()
	svc := NewApplicationService(memApps{store}, nil, nil, nil, nil)
	store.addApp(models.ApplicationStatusActive, 3)
	store.mu.Lock()
	store.apps["app-x"] = models.Application{ID: "app-x", ClientID: "client-2", Status: models.ApplicationStatusActive}
	store.mu.Unlock()

	apps, page, err := svc.List(context.Background(), clientActor, dto.ApplicationQuery{})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "client-1", apps[0].ClientID)
	assert.Equal(t, 1, page.TotalCount)

	all, _, err := svc.List(context.Background(), adminActor, dto.ApplicationQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = svc.List(context.Background(), adminActor, dto.ApplicationQuery{Status: "archived"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation))
}

func TestTestCaseAuthoring(t *testing.T) {
	store := newMemStore()
	cache := newMapCache()
	svc := NewTestCaseService(memTestCases{store}, memApps{store}, NewCacheService(cache, nil, time.Minute, nil, true), nil, nil, nil)
	ctx := context.Background()
	app := store.addApp(models.ApplicationStatusActive, 3)

	req := dto.CreateTestCaseRequest{Title: "checkout", GivenContext: "a cart", WhenAction: "pays", ThenResult: "receipt shown", Priority: models.PriorityHigh}
	_, err := svc.Create(ctx, workerActor, app.ID, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))
	_, err = svc.Create(ctx, qaActor, "missing", req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound))

	tc, err := svc.Create(ctx, qaActor, app.ID, req)
	require.NoError(t, err)
	assert.Equal(t, qaActor.ID, tc.QAID)

	items, err := svc.ListByApplication(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, cache.has(testCasesCacheKey(app.ID)))

	title := "checkout v2"
	_, err = svc.Update(ctx, models.Actor{ID: "qa-2", Role: models.RoleQASpecialist}, tc.ID, dto.UpdateTestCaseRequest{Title: &title})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))

	updated, err := svc.Update(ctx, qaActor, tc.ID, dto.UpdateTestCaseRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.False(t, cache.has(testCasesCacheKey(app.ID)))
}

func TestTestCaseDeleteRefusesAssigned(t *testing.T) {
	store := newMemStore()
	svc := NewTestCaseService(memTestCases{store}, memApps{store}, nil, nil, nil, nil)
	app := store.addApp(models.ApplicationStatusActive, 3)
	used := store.addTestCase(app.ID, models.PriorityHigh)
	free := store.addTestCase(app.ID, models.PriorityLow)
	store.addTask(app.ID, used.ID, "worker-1", models.TaskStatusAssigned)

	err := svc.Delete(context.Background(), qaActor, used.ID)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed))

	require.NoError(t, svc.Delete(context.Background(), qaActor, free.ID))
	_, err = svc.Get(context.Background(), free.ID)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound))
}

func TestTestCaseCreateRejectsCompletedApplication(t *testing.T) {
	store := newMemStore()
	svc := NewTestCaseService(memTestCases{store}, memApps{store}, nil, nil, nil, nil)
	app := store.addApp(models.ApplicationStatusCompleted, 3)

	_, err := svc.Create(context.Background(), qaActor, app.ID, dto.CreateTestCaseRequest{Title: "t", GivenContext: "g", WhenAction: "w", ThenResult: "r"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed))
}

func TestBugReportRequiresTaskInProgress(t *testing.T) {
	store := newMemStore()
	svc := NewBugReportService(store, memBugs{store}, memTasks{store}, nil, nil, nil)
	app := store.addApp(models.ApplicationStatusActive, 3)
	tc := store.addTestCase(app.ID, models.PriorityHigh)
	assigned := store.addTask(app.ID, tc.ID, workerActor.ID, models.TaskStatusAssigned)
	req := dto.CreateBugReportRequest{Title: "crash", Severity: models.SeverityHigh}

	_, err := svc.Create(context.Background(), workerActor, assigned.ID, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed))

	running := store.addTask(app.ID, tc.ID, "worker-2", models.TaskStatusInProgress)
	_, err = svc.Create(context.Background(), workerActor, running.ID, req)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))

	bug, err := svc.Create(context.Background(), models.Actor{ID: "worker-2", Role: models.RoleCrowdworker}, running.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "worker-2", bug.WorkerID)
	assert.Nil(t, bug.ValidationStatus)

	_, err = svc.Create(context.Background(), workerActor, running.ID, dto.CreateBugReportRequest{Title: "crash", Severity: "Blocker"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation))
}

func TestBugReportUpdateLockedAfterValidation(t *testing.T) {
	store := newMemStore()
	svc := NewBugReportService(store, memBugs{store}, memTasks{store}, nil, nil, nil)
	app := store.addApp(models.ApplicationStatusActive, 3)
	tc := store.addTestCase(app.ID, models.PriorityHigh)
	task := store.addTask(app.ID, tc.ID, workerActor.ID, models.TaskStatusInProgress)
	bug := store.addBug(task.ID, models.SeverityLow)

	sev := models.SeverityCritical
	updated, err := svc.Update(context.Background(), workerActor, bug.ID, dto.UpdateBugReportRequest{Severity: &sev})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, updated.Severity)

	store.mu.Lock()
	store.bugValidations = append(store.bugValidations, models.BugValidation{ID: "bv-1", BugReportID: bug.ID, QAID: qaActor.ID})
	store.mu.Unlock()

	_, err = svc.Update(context.Background(), workerActor, bug.ID, dto.UpdateBugReportRequest{Severity: &sev})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed))

	list, err := svc.ListByTask(context.Background(), models.Actor{ID: "worker-9", Role: models.RoleCrowdworker}, task.ID)
	assert.Nil(t, list)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden))
}

func TestCacheServiceDisabledIsInert(t *testing.T) {
	var nilCache *CacheService
	var dest models.Application
	assert.False(t, nilCache.Get(context.Background(), "k", &dest))
	nilCache.Set(context.Background(), "k", dest)
	nilCache.Invalidate(context.Background(), "k")

	backing := newMapCache()
	off := NewCacheService(backing, nil, 0, nil, false)
	off.Set(context.Background(), "k", dest)
	assert.False(t, backing.has("k"))
}
