package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/metrics"
	usagedomain "github.com/smallbiznis/chatlink/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Increment(ctx context.Context, userChannelID int64, tokensDelta, requestsDelta int64) error {
	if userChannelID == 0 {
		return usagedomain.ErrInvalidUserChannel
	}
	if tokensDelta == 0 && requestsDelta == 0 {
		return nil
	}

	now := s.clock.Now()
	var err error
	if strings.EqualFold(s.db.Dialector.Name(), "mysql") {
		err = s.db.WithContext(ctx).Exec(
			`INSERT INTO usage_records (user_channel_id, tokens_used, requests_used, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE
			   tokens_used = tokens_used + VALUES(tokens_used),
			   requests_used = requests_used + VALUES(requests_used),
			   updated_at = VALUES(updated_at)`,
			userChannelID, tokensDelta, requestsDelta, now, now,
		).Error
	} else {
		// postgres and sqlite share the excluded pseudo-table syntax
		err = s.db.WithContext(ctx).Exec(
			`INSERT INTO usage_records (user_channel_id, tokens_used, requests_used, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_channel_id) DO UPDATE SET
			   tokens_used = usage_records.tokens_used + excluded.tokens_used,
			   requests_used = usage_records.requests_used + excluded.requests_used,
			   updated_at = excluded.updated_at`,
			userChannelID, tokensDelta, requestsDelta, now, now,
		).Error
	}
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.UsageIncrements.Inc()
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userChannelID int64) (usagedomain.Totals, error) {
	var record usagedomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_channel_id = ?", userChannelID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return usagedomain.Totals{}, nil
		}
		return usagedomain.Totals{}, err
	}
	return usagedomain.Totals{
		TokensUsed:   record.TokensUsed,
		RequestsUsed: record.RequestsUsed,
	}, nil
}
