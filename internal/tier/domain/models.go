// Package domain contains the tier feature-limit reference table, keyed by
// the billing provider's product id. Read-only from this subsystem.
package domain

import "time"

type TierFeatures struct {
	ProductID     string    `gorm:"primaryKey;type:text" json:"product_id"`
	TokensLimit   int64     `gorm:"not null;default:0" json:"tokens_limit"`
	RequestsLimit int64     `gorm:"not null;default:0" json:"requests_limit"`
	HistoryLimit  int64     `gorm:"not null;default:0" json:"history_limit"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TierFeatures) TableName() string { return "tier_features" }
