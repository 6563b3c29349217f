package repository

import (
	"context"
	"errors"

	channeldomain "github.com/smallbiznis/chatlink/internal/channel/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) channeldomain.Repository {
	return &repo{db: db}
}

func (r *repo) FindActive(ctx context.Context, id string) (*channeldomain.Channel, error) {
	var channel channeldomain.Channel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channeldomain.ErrChannelNotFound
		}
		return nil, err
	}
	if !channel.Active {
		return nil, channeldomain.ErrChannelInactive
	}
	return &channel, nil
}

func (r *repo) List(ctx context.Context) ([]channeldomain.Channel, error) {
	var channels []channeldomain.Channel
	err := r.db.WithContext(ctx).
		Order("id").
		Find(&channels).Error
	return channels, err
}
