package service

import (
	"context"
	"time"

	"github.com/zafin-ops/be-fin-controls/internal/apperr"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/periodlock"
	"github.com/zafin-ops/be-fin-controls/internal/repository"
)

// PeriodLockStoreInterface persists period locks.
type PeriodLockStoreInterface interface {
	Create(ctx context.Context, lock *repository.PeriodLock) error
	List(ctx context.Context, companyID string, activeOnly bool) ([]*repository.PeriodLock, error)
	ListActive(ctx context.Context, companyID string) ([]*repository.PeriodLock, error)
	Disable(ctx context.Context, id, companyID string) error
}

// PeriodLockService validates transaction dates against a company's
// configured accounting-period locks and administers the locks themselves.
type PeriodLockService struct {
	locks PeriodLockStoreInterface
	now   func() time.Time
	log   *logger.Logger
}

// NewPeriodLockService creates a new PeriodLockService using the system
// clock.
func NewPeriodLockService(locks PeriodLockStoreInterface, log *logger.Logger) *PeriodLockService {
	return &PeriodLockService{locks: locks, now: time.Now, log: log}
}

// WithClock replaces the reference clock. For tests.
func (s *PeriodLockService) WithClock(now func() time.Time) *PeriodLockService {
	s.now = now
	return s
}

// ValidateTransactionDate decides whether a transaction dated date may be
// written for the company. It performs no writes; callers must reject the
// write when the result is not valid.
func (s *PeriodLockService) ValidateTransactionDate(ctx context.Context, companyID string, date time.Time) (*periodlock.Result, error) {
	if companyID == "" {
		return nil, apperr.InvalidInput("company_id", "must not be empty")
	}

	stored, err := s.locks.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}

	locks := make([]periodlock.Lock, 0, len(stored))
	for _, l := range stored {
		locks = append(locks, periodlock.Lock{
			PeriodStart: l.PeriodStart,
			PeriodEnd:   l.PeriodEnd,
			Reason:      l.LockReason,
		})
	}

	res := periodlock.Evaluate(s.now(), date, locks)
	return &res, nil
}

// CreateLock closes an accounting period for a company.
func (s *PeriodLockService) CreateLock(ctx context.Context, actor ActorContext, lock *repository.PeriodLock) error {
	if actor.CompanyID == "" {
		return apperr.NotFound("company membership", actor.UserID)
	}
	if lock.LockReason == "" {
		return apperr.InvalidInput("lock_reason", "must not be empty")
	}
	if lock.PeriodStart.IsZero() || lock.PeriodEnd.IsZero() {
		return apperr.InvalidInput("period", "period_start and period_end are required")
	}

	lock.CompanyID = actor.CompanyID
	lock.IsActive = true
	if actor.UserID != "" {
		lock.CreatedBy = &actor.UserID
	}

	if err := s.locks.Create(ctx, lock); err != nil {
		return err
	}

	s.log.Info().
		Str("lock_id", lock.ID).
		Str("company_id", lock.CompanyID).
		Time("period_start", lock.PeriodStart).
		Time("period_end", lock.PeriodEnd).
		Msg("Period lock created")
	return nil
}

// ListLocks returns a company's locks.
func (s *PeriodLockService) ListLocks(ctx context.Context, actor ActorContext, activeOnly bool) ([]*repository.PeriodLock, error) {
	return s.locks.List(ctx, actor.CompanyID, activeOnly)
}

// DisableLock reopens a previously locked period.
func (s *PeriodLockService) DisableLock(ctx context.Context, actor ActorContext, lockID string) error {
	if err := s.locks.Disable(ctx, lockID, actor.CompanyID); err != nil {
		return err
	}
	s.log.Info().
		Str("lock_id", lockID).
		Str("company_id", actor.CompanyID).
		Msg("Period lock disabled")
	return nil
}
