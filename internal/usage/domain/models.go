// Package domain contains persistence models for per-link usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord keeps running token/request counters for one UserChannel.
// Created lazily by the first increment; mutated only by increments and the
// period reset job.
type UsageRecord struct {
	UserChannelID snowflake.ID `gorm:"primaryKey;column:user_channel_id" json:"user_channel_id"`
	TokensUsed    int64        `gorm:"not null;default:0" json:"tokens_used"`
	RequestsUsed  int64        `gorm:"not null;default:0" json:"requests_used"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
