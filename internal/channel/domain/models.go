// Package domain contains reference data for messaging channels.
package domain

import "time"

// MatchMethod describes how a channel identifies an external contact.
type MatchMethod string

const (
	MatchMethodPhoneNumber MatchMethod = "phone_number"
	MatchMethodUsername    MatchMethod = "username"
	MatchMethodOpaqueID    MatchMethod = "opaque_id"
)

// Channel identifies one external messaging surface. Rows are created and
// updated by administrators only; the linking subsystem treats them as
// immutable reference data.
type Channel struct {
	ID          string      `gorm:"primaryKey;type:text" json:"id"`
	DisplayName string      `gorm:"type:text;not null" json:"display_name"`
	MatchMethod MatchMethod `gorm:"type:text;not null;default:opaque_id" json:"match_method"`
	// No gorm-side default: a default tag makes gorm drop the zero value
	// from inserts, silently flipping deactivated rows back to active.
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Channel) TableName() string { return "channels" }
