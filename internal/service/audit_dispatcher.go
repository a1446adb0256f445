package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type requestMetaKey struct{}

// RequestMeta carries caller network details into audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta attaches request metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata attached by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// AuditDispatcherConfig sizes the dispatcher worker pool.
type AuditDispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// AuditDispatcher writes audit entries from a background worker pool. Record
// never blocks: a full buffer drops the entry and counts it.
type AuditDispatcher struct {
	queue   *jobs.Queue
	writer  auditWriter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditDispatcher constructs the dispatcher. Call Start before Record.
func NewAuditDispatcher(writer auditWriter, metrics *MetricsService, cfg AuditDispatcherConfig, logger *zap.Logger) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &AuditDispatcher{writer: writer, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("audit", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 200 * time.Millisecond,
		JobTimeout: 5 * time.Second,
		Logger:     logger,
		OnDrop: func(job jobs.Job, err error) {
			metrics.RecordAuditDropped()
			logger.Warn("audit event dropped", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	return d
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains pending entries until ctx expires.
func (d *AuditDispatcher) Stop(ctx context.Context) {
	d.queue.Stop(ctx)
}

// Stats exposes queue counters.
func (d *AuditDispatcher) Stats() jobs.Stats {
	return d.queue.Stats()
}

// Record enqueues an audit entry, stamping the request metadata found in ctx.
func (d *AuditDispatcher) Record(ctx context.Context, log *models.AuditLog) {
	if log == nil {
		return
	}
	meta := RequestMetaFrom(ctx)
	if log.IPAddress == "" {
		log.IPAddress = meta.IPAddress
	}
	if log.UserAgent == "" {
		log.UserAgent = meta.UserAgent
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := d.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log}); err != nil {
		d.logger.Debug("audit enqueue failed", zap.String("action", log.Action), zap.Error(err))
	}
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return d.writer.CreateAuditLog(ctx, log)
}
