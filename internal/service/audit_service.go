package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/models"
	"github.com/kcls-dev/circulation-api/pkg/jobs"
)

type auditStore interface {
	Insert(ctx context.Context, ext sqlx.ExtContext, entry *models.AuditLog) error
}

// ResourceBorrow is the audit resource name for borrow transactions.
const ResourceBorrow = "borrow_transaction"

// ResourceSettings is the audit resource name for circulation settings.
const ResourceSettings = "circulation_settings"

// AuditService records audit entries asynchronously through a background
// worker queue so request handling never waits on the audit write.
type AuditService struct {
	audits auditStore
	db     sqlx.ExtContext
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs AuditService and its worker queue. Call Start
// before recording and Stop on shutdown.
func NewAuditService(audits auditStore, db sqlx.ExtContext, workers, bufferSize int, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{audits: audits, db: db, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the audit workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// RecordBorrowAction enqueues an audit entry for an action on a borrow
// transaction. Details may be nil.
func (s *AuditService) RecordBorrowAction(actorID *string, action string, borrowID int64, details map[string]any) {
	resourceID := strconv.FormatInt(borrowID, 10)
	s.record(actorID, action, ResourceBorrow, &resourceID, details)
}

// RecordSettingsUpdate enqueues an audit entry for a settings change.
func (s *AuditService) RecordSettingsUpdate(actorID *string, details map[string]any) {
	s.record(actorID, models.AuditActionSettingsUpdate, ResourceSettings, nil, details)
}

func (s *AuditService) record(actorID *string, action, resource string, resourceID *string, details map[string]any) {
	var payload []byte
	if details != nil {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			s.logger.Warn("audit detail marshal failed", zap.String("action", action), zap.Error(err))
		}
	}
	entry := models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    payload,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: action, Payload: entry}); err != nil {
		s.logger.Warn("audit enqueue failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.audits.Insert(ctx, s.db, &entry)
}
