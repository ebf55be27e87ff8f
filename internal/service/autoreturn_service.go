package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/models"
)

type autoReturnStore interface {
	ListDigitalOnlyOutstanding(ctx context.Context, ext sqlx.ExtContext) ([]int64, error)
	GetTransaction(ctx context.Context, ext sqlx.ExtContext, id int64) (*models.BorrowTransaction, error)
	EffectiveDueDate(ctx context.Context, ext sqlx.ExtContext, borrowID int64) (*time.Time, error)
	UpdateReturnStatus(ctx context.Context, ext sqlx.ExtContext, id int64, status models.ReturnStatus) error
}

type autoReturnNotifier interface {
	EmitReturnRecorded(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string, route models.StaffRoute)
}

// AutoReturnService closes expired digital document loans. Digital items have
// no physical copy to hand back, so once the due date passes the transaction
// is marked Returned automatically. Transactions with any physical copy are
// never touched.
type AutoReturnService struct {
	db       sqlx.ExtContext
	runner   txRunner
	borrows  autoReturnStore
	notifier autoReturnNotifier
	metrics  *MetricsService
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewAutoReturnService constructs AutoReturnService.
func NewAutoReturnService(db sqlx.ExtContext, runner txRunner, borrows autoReturnStore, notifier autoReturnNotifier, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *AutoReturnService {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoReturnService{
		db:       db,
		runner:   runner,
		borrows:  borrows,
		notifier: notifier,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run scans on a fixed interval until the context is cancelled.
func (s *AutoReturnService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("auto-return scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auto-return scheduler stopped")
			return
		case <-ticker.C:
			closed, err := s.ScanOnce(ctx)
			if err != nil {
				s.logger.Error("auto-return scan failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				s.logger.Info("auto-return scan closed transactions", zap.Int("closed", closed))
			}
		}
	}
}

// ScanOnce closes every eligible transaction whose effective due date is on
// or before today. Returns the number closed.
func (s *AutoReturnService) ScanOnce(ctx context.Context) (int, error) {
	ids, err := s.borrows.ListDigitalOnlyOutstanding(ctx, s.db)
	if err != nil {
		return 0, err
	}
	today := dateOnly(s.now().UTC())
	closed := 0
	for _, id := range ids {
		due, err := s.borrows.EffectiveDueDate(ctx, s.db, id)
		if err != nil {
			s.logger.Warn("due-date lookup failed", zap.Int64("borrow_id", id), zap.Error(err))
			continue
		}
		if due == nil || dateOnly(*due).After(today) {
			continue
		}
		tx, err := s.borrows.GetTransaction(ctx, s.db, id)
		if err != nil {
			s.logger.Warn("transaction lookup failed", zap.Int64("borrow_id", id), zap.Error(err))
			continue
		}
		err = s.runner.InTx(ctx, func(ext sqlx.ExtContext) error {
			if err := s.borrows.UpdateReturnStatus(ctx, ext, id, models.ReturnStatusReturned); err != nil {
				return err
			}
			s.notifier.EmitReturnRecorded(ctx, ext, id, tx.BorrowerID, models.RouteAdmin)
			return nil
		})
		if err != nil {
			s.logger.Warn("auto-return close failed", zap.Int64("borrow_id", id), zap.Error(err))
			continue
		}
		closed++
	}
	s.metrics.RecordAutoReturnScan(closed)
	return closed, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
