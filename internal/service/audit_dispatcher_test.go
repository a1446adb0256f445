package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
)

type auditWriterStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (s *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *auditWriterStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func TestAuditDispatcherWritesWithRequestMeta(t *testing.T) {
	writer := &auditWriterStub{}
	d := NewAuditDispatcher(writer, NewMetricsService(), AuditDispatcherConfig{Workers: 1, BufferSize: 4}, nil)
	d.Start(context.Background())

	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl"})
	d.Record(ctx, newAuditLog(workerActor, models.AuditActionTaskTransition, models.AuditResourceTask, "task-1", nil, map[string]string{"status": "In Progress"}))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Stop(stopCtx)

	require.Equal(t, 1, writer.count())
	log := writer.logs[0]
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.Equal(t, "curl", log.UserAgent)
	assert.NotEmpty(t, log.ID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, workerActor.ID, *log.UserID)
	assert.JSONEq(t, `{"status":"In Progress"}`, string(log.NewValues))
}

func TestAuditDispatcherCountsDrops(t *testing.T) {
	writer := &auditWriterStub{err: errors.New("db down")}
	metrics := NewMetricsService()
	d := NewAuditDispatcher(writer, metrics, AuditDispatcherConfig{Workers: 1, BufferSize: 1}, nil)
	d.Start(context.Background())

	d.Record(context.Background(), &models.AuditLog{Action: models.AuditActionTaskAssign})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.auditDropped) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Stop(stopCtx)
	assert.Equal(t, uint64(1), d.Stats().Dropped)
}

func TestAuditDispatcherIgnoresRecordBeforeStart(t *testing.T) {
	writer := &auditWriterStub{}
	d := NewAuditDispatcher(writer, nil, AuditDispatcherConfig{}, nil)
	d.Record(context.Background(), &models.AuditLog{Action: models.AuditActionTaskAssign})
	d.Record(context.Background(), nil)
	assert.Zero(t, writer.count())
}
