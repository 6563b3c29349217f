// Package domain contains persistence models for verified account-channel
// bindings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserChannel is the durable, verified binding between an account and an
// external channel identity. At most one row per (account, channel) and at
// most one row per (channel, external link); both constraints are enforced
// by the store and drive finalize's race resolution. ExternalLink is nil for
// handle-less links: NULLs compare distinct in the unique index, so any
// number of accounts can hold a handle-less link on the same channel.
type UserChannel struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID    string       `gorm:"type:text;not null;uniqueIndex:ux_user_channels_account_channel,priority:1" json:"account_id"`
	ChannelID    string       `gorm:"type:text;not null;uniqueIndex:ux_user_channels_account_channel,priority:2;uniqueIndex:ux_user_channels_channel_link,priority:1" json:"channel_id"`
	ExternalLink *string      `gorm:"type:text;uniqueIndex:ux_user_channels_channel_link,priority:2" json:"external_link"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	VerifiedAt   *time.Time   `json:"verified_at"`
}

// TableName sets the database table name.
func (UserChannel) TableName() string { return "user_channels" }
