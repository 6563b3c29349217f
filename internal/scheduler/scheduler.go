// Package scheduler runs the pull-based reconciliation jobs: zeroing usage
// counters once a billing period elapses and garbage-collecting expired
// verification nonces. Both jobs are idempotent and tolerate missed or
// delayed billing events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/metrics"
	"github.com/smallbiznis/chatlink/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/chatlink/internal/subscription/domain"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobPeriodReset  = "period_reset"
	jobNonceCleanup = "nonce_cleanup"

	lockKeyPrefix = "scheduler:lock:"
)

var ErrInvalidConfig = errors.New("scheduler requires db, log, clock, subscription repository and verification service")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	SubRepo         subscriptiondomain.Repository
	VerificationSvc verificationdomain.Service
	Limiter         *ratelimit.NonceIssueLimiter `optional:"true"`
	Metrics         *metrics.Metrics             `optional:"true"`
	Config          Config                       `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subRepo         subscriptiondomain.Repository
	verificationSvc verificationdomain.Service
	locker          *ratelimit.Locker
	metrics         *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.SubRepo == nil || p.VerificationSvc == nil {
		return nil, ErrInvalidConfig
	}
	var locker *ratelimit.Locker
	if p.Limiter.Enabled() {
		locker = p.Limiter.SchedulerLocker()
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		subRepo:         p.SubRepo,
		verificationSvc: p.VerificationSvc,
		locker:          locker,
		metrics:         p.Metrics,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	resetTicker := time.NewTicker(s.cfg.PeriodResetInterval)
	defer resetTicker.Stop()
	cleanupTicker := time.NewTicker(s.cfg.NonceCleanupInterval)
	defer cleanupTicker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("initial scheduler pass failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-resetTicker.C:
			if err := s.runJob(ctx, jobPeriodReset, s.ResetElapsedPeriods); err != nil {
				s.log.Error("scheduler job failed", zap.Error(err))
			}
		case <-cleanupTicker.C:
			if err := s.runJob(ctx, jobNonceCleanup, s.CleanupExpiredNonces); err != nil {
				s.log.Error("scheduler job failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	if err := s.runJob(parent, jobPeriodReset, s.ResetElapsedPeriods); err != nil {
		return err
	}
	return s.runJob(parent, jobNonceCleanup, s.CleanupExpiredNonces)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		key := lockKeyPrefix + name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, proceeding unlocked",
				zap.String("job", name),
				zap.Error(err),
			)
		} else if !ok {
			s.log.Debug("scheduler job held elsewhere", zap.String("job", name))
			return nil
		} else {
			defer func() {
				_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
			}()
		}
	}

	if s.metrics != nil {
		s.metrics.SchedulerRuns.WithLabelValues(name).Inc()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}

	// treat deadline as soft-timeout
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	if s.metrics != nil {
		s.metrics.SchedulerErrors.WithLabelValues(name).Inc()
	}
	return fmt.Errorf("%s: %w", name, err)
}

// ResetElapsedPeriods zeroes the counters of every channel belonging to an
// account whose active-or-trialing subscription period ended before now.
// Running it twice between rollovers is a no-op the second time: the write
// lands the same zeros. Concurrent increments race at row level with
// last-write-wins, acceptable because resets only fire after the period has
// already elapsed.
func (s *Scheduler) ResetElapsedPeriods(ctx context.Context) error {
	now := s.clock.Now()

	accountIDs, err := s.subRepo.ListAccountsWithElapsedPeriods(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list elapsed accounts: %w", err)
	}
	if len(accountIDs) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET tokens_used = 0,
		     requests_used = 0,
		     updated_at = ?
		 WHERE user_channel_id IN (
		     SELECT id FROM user_channels WHERE account_id IN ?
		 )`,
		now,
		accountIDs,
	)
	if result.Error != nil {
		return fmt.Errorf("reset usage counters: %w", result.Error)
	}

	s.log.Info("usage counters reset",
		zap.Int("accounts", len(accountIDs)),
		zap.Int64("records", result.RowsAffected),
	)
	return nil
}

func (s *Scheduler) CleanupExpiredNonces(ctx context.Context) error {
	deleted, err := s.verificationSvc.CleanupExpired(ctx, s.cfg.NonceCleanupAfter)
	if err != nil {
		return fmt.Errorf("cleanup expired nonces: %w", err)
	}
	if deleted > 0 {
		s.log.Info("expired nonces cleaned", zap.Int64("deleted", deleted))
	}
	return nil
}
