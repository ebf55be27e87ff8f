package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kcls-dev/circulation-api/internal/models"
	"github.com/kcls-dev/circulation-api/internal/repository"
)

type overdueStore interface {
	ListOutstandingDue(ctx context.Context, ext sqlx.ExtContext) ([]repository.OutstandingDue, error)
}

type overdueNotifier interface {
	EmitOverdueReminder(ctx context.Context, ext sqlx.ExtContext, borrowID int64, borrowerID string, route models.StaffRoute) (bool, error)
}

type settingsReader interface {
	Get(ctx context.Context) (models.CirculationSettings, error)
}

// AutoOverdueService sends overdue reminders on the operator-configured
// schedule: enabled flag, weekday allow-list and a daily run time. A full
// pass runs at most once per calendar day, and the per-borrow dedup in the
// notifier keeps reminders to one per borrow per day even across restarts.
type AutoOverdueService struct {
	db       sqlx.ExtContext
	borrows  overdueStore
	notifier overdueNotifier
	settings settingsReader
	auditor  borrowAuditor
	metrics  *MetricsService

	pollFloor time.Duration
	pollCeil  time.Duration
	now       func() time.Time
	lastRun   time.Time
	logger    *zap.Logger
}

// NewAutoOverdueService constructs AutoOverdueService.
func NewAutoOverdueService(db sqlx.ExtContext, borrows overdueStore, notifier overdueNotifier, settings settingsReader, auditor borrowAuditor, metrics *MetricsService, pollFloor, pollCeil time.Duration, logger *zap.Logger) *AutoOverdueService {
	if pollFloor <= 0 {
		pollFloor = 30 * time.Second
	}
	if pollCeil <= 0 {
		pollCeil = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoOverdueService{
		db:        db,
		borrows:   borrows,
		notifier:  notifier,
		settings:  settings,
		auditor:   auditor,
		metrics:   metrics,
		pollFloor: pollFloor,
		pollCeil:  pollCeil,
		now:       time.Now,
		logger:    logger,
	}
}

// Run polls the schedule until the context is cancelled.
func (s *AutoOverdueService) Run(ctx context.Context) {
	s.logger.Info("auto-overdue scheduler started")
	for {
		settings, err := s.settings.Get(ctx)
		if err != nil {
			s.logger.Error("settings load failed", zap.Error(err))
			settings = DefaultCirculationSettings()
		}
		if s.shouldRun(settings, s.now()) {
			reminders, err := s.ScanOnce(ctx)
			if err != nil {
				s.logger.Error("overdue scan failed", zap.Error(err))
			} else {
				s.lastRun = s.now()
				s.logger.Info("overdue scan complete", zap.Int("reminders", reminders))
			}
		}
		wait := s.nextWait(settings, s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("auto-overdue scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

// shouldRun reports whether a pass is due: the scheduler is enabled, today is
// in the allow-list, the configured run time has passed, and no pass has run
// today yet.
func (s *AutoOverdueService) shouldRun(settings models.CirculationSettings, now time.Time) bool {
	if !settings.AutoOverdueEnabled {
		return false
	}
	day := now.Format("Mon")
	allowed := false
	for _, d := range settings.AutoOverdueDays {
		if d == day {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	runAt, err := runTimeOn(now, settings.AutoOverdueTime)
	if err != nil {
		s.logger.Warn("invalid run time, skipping", zap.String("time", settings.AutoOverdueTime))
		return false
	}
	if now.Before(runAt) {
		return false
	}
	return !sameDate(s.lastRun, now)
}

// nextWait clamps the time until the next configured run between the poll
// floor and ceiling so settings changes are picked up reasonably fast.
func (s *AutoOverdueService) nextWait(settings models.CirculationSettings, now time.Time) time.Duration {
	wait := s.pollCeil
	if settings.AutoOverdueEnabled {
		if runAt, err := runTimeOn(now, settings.AutoOverdueTime); err == nil {
			if now.After(runAt) {
				runAt = runAt.Add(24 * time.Hour)
			}
			wait = runAt.Sub(now)
		}
	}
	if wait < s.pollFloor {
		wait = s.pollFloor
	}
	if wait > s.pollCeil {
		wait = s.pollCeil
	}
	return wait
}

// ScanOnce reminds every borrower holding a transaction past its due date.
// Returns the number of reminders actually emitted.
func (s *AutoOverdueService) ScanOnce(ctx context.Context) (int, error) {
	rows, err := s.borrows.ListOutstandingDue(ctx, s.db)
	if err != nil {
		return 0, err
	}
	today := dateOnly(s.now().UTC())
	reminders := 0
	for _, row := range rows {
		if !row.DueDate.Valid {
			continue
		}
		if !dateOnly(row.DueDate.Time).Before(today) {
			continue
		}
		emitted, err := s.notifier.EmitOverdueReminder(ctx, s.db, row.BorrowID, row.BorrowerID, row.Route())
		if err != nil {
			s.logger.Warn("overdue reminder failed", zap.Int64("borrow_id", row.BorrowID), zap.Error(err))
			continue
		}
		if emitted {
			reminders++
			s.auditor.RecordBorrowAction(nil, models.AuditActionOverdueReminder, row.BorrowID,
				map[string]any{"due_date": row.DueDate.Time.Format(DateLayout)})
		}
	}
	s.metrics.RecordOverdueScan(reminders)
	return reminders, nil
}

// runTimeOn resolves an HH:MM string on now's date.
func runTimeOn(now time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location()), nil
}

func sameDate(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return a.Format("20060102") == b.Format("20060102")
}
