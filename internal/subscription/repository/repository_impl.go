package repository

import (
	"context"
	"errors"
	"time"

	subscriptiondomain "github.com/smallbiznis/chatlink/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) subscriptiondomain.Repository {
	return &repo{db: db}
}

func (r *repo) FindActiveByAccountID(ctx context.Context, accountID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, subscriptiondomain.GatingStatuses()).
		Order("created_at DESC").
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) ListAccountsWithElapsedPeriods(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var accountIDs []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT DISTINCT account_id
		 FROM subscriptions
		 WHERE status IN ? AND current_period_end < ?
		 LIMIT ?`,
		subscriptiondomain.GatingStatuses(),
		now,
		limit,
	).Scan(&accountIDs).Error
	if err != nil {
		return nil, err
	}
	return accountIDs, nil
}
