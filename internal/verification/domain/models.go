// Package domain contains persistence models for pending channel
// verifications.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChannelVerification is a single-use, time-boxed secret proving the right
// to bind one external channel identity to an account. Consumed (deleted)
// exactly once on successful finalize, or garbage-collected after expiry.
type ChannelVerification struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	Nonce          string            `gorm:"type:text;not null;uniqueIndex:ux_channel_verifications_nonce"`
	ChannelID      string            `gorm:"type:text;not null;index:ix_channel_verifications_channel_handle,priority:1"`
	AccountID      string            `gorm:"type:text"` // pre-bound account, empty for pure registration
	ExternalHandle string            `gorm:"type:text;index:ix_channel_verifications_channel_handle,priority:2"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	ExpiresAt      time.Time         `gorm:"not null;index"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ChannelVerification) TableName() string { return "channel_verifications" }
