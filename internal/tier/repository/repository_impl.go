package repository

import (
	"context"
	"errors"

	tierdomain "github.com/smallbiznis/chatlink/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) tierdomain.Repository {
	return &repo{db: db}
}

func (r *repo) FindByProductID(ctx context.Context, productID string) (*tierdomain.TierFeatures, error) {
	var features tierdomain.TierFeatures
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&features).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &features, nil
}
