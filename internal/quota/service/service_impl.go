package service

import (
	"context"
	"errors"
	"strings"

	quotadomain "github.com/smallbiznis/chatlink/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/chatlink/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/chatlink/internal/tier/domain"
	usagedomain "github.com/smallbiznis/chatlink/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	SubRepo  subscriptiondomain.Repository
	TierRepo tierdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	subRepo  subscriptiondomain.Repository
	tierRepo tierdomain.Repository
}

func NewService(p ServiceParam) quotadomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("quota.service"),
		subRepo:  p.SubRepo,
		tierRepo: p.TierRepo,
	}
}

// GetLimitsAndUsage fails open: a transient read error returns zeroed usage
// and nil limits instead of blocking message flow.
func (s *Service) GetLimitsAndUsage(ctx context.Context, accountID string) (quotadomain.LimitsAndUsage, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return quotadomain.LimitsAndUsage{}, quotadomain.ErrInvalidAccount
	}

	var result quotadomain.LimitsAndUsage

	totals, err := s.sumAccountUsage(ctx, accountID)
	if err != nil {
		s.log.Warn("usage totals read failed", zap.String("account_id", accountID), zap.Error(err))
	} else {
		result.TokensUsed = totals.TotalTokens
		result.RequestsUsed = totals.TotalRequests
	}

	subscription, err := s.subRepo.FindActiveByAccountID(ctx, accountID)
	if err != nil {
		s.log.Warn("subscription read failed", zap.String("account_id", accountID), zap.Error(err))
		return result, nil
	}
	if subscription == nil {
		return result, nil
	}

	periodStart := subscription.CurrentPeriodStart
	periodEnd := subscription.CurrentPeriodEnd
	result.PeriodStart = &periodStart
	result.PeriodEnd = &periodEnd

	features, err := s.tierRepo.FindByProductID(ctx, subscription.ProductID)
	if err != nil {
		s.log.Warn("tier features read failed",
			zap.String("account_id", accountID),
			zap.String("product_id", subscription.ProductID),
			zap.Error(err),
		)
		return result, nil
	}
	if features == nil {
		return result, nil
	}

	result.TokensLimit = &features.TokensLimit
	result.RequestsLimit = &features.RequestsLimit
	result.HistoryLimit = &features.HistoryLimit
	return result, nil
}

func (s *Service) GetAggregateUsage(ctx context.Context, accountID string) (quotadomain.AggregateUsage, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return quotadomain.AggregateUsage{}, quotadomain.ErrInvalidAccount
	}

	totals, err := s.sumAccountUsage(ctx, accountID)
	if err != nil {
		s.log.Warn("aggregate usage read failed", zap.String("account_id", accountID), zap.Error(err))
		return quotadomain.AggregateUsage{}, nil
	}
	return totals, nil
}

type usageTotalsRow struct {
	TotalTokens   int64
	TotalRequests int64
}

func (s *Service) sumAccountUsage(ctx context.Context, accountID string) (quotadomain.AggregateUsage, error) {
	var row usageTotalsRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(ur.tokens_used), 0) AS total_tokens,
		        COALESCE(SUM(ur.requests_used), 0) AS total_requests
		 FROM usage_records ur
		 JOIN user_channels uc ON uc.id = ur.user_channel_id
		 WHERE uc.account_id = ?`,
		accountID,
	).Scan(&row).Error
	if err != nil {
		return quotadomain.AggregateUsage{}, err
	}

	totals := quotadomain.AggregateUsage{
		TotalTokens:   row.TotalTokens,
		TotalRequests: row.TotalRequests,
	}
	if totals.TotalTokens == 0 && totals.TotalRequests == 0 {
		return totals, nil
	}

	var latest usagedomain.UsageRecord
	err = s.db.WithContext(ctx).
		Joins("JOIN user_channels uc ON uc.id = usage_records.user_channel_id").
		Where("uc.account_id = ?", accountID).
		Order("usage_records.updated_at DESC").
		First(&latest).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return quotadomain.AggregateUsage{}, err
		}
		return totals, nil
	}
	lastActivity := latest.UpdatedAt
	totals.LastActivity = &lastActivity
	return totals, nil
}
