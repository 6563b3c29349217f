// Package domain contains the read-only mirror of billing-provider
// subscriptions. Rows are owned by the provider's webhook sync; this
// subsystem only reads them to resolve the active tier and period window.
package domain

import "time"

// SubscriptionStatus represents provider lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription mirrors the provider record: status, period window and the
// priced product it points at.
type Subscription struct {
	ID                 string             `gorm:"primaryKey;type:text" json:"id"`
	AccountID          string             `gorm:"type:text;not null;index:ix_subscriptions_account_status,priority:1" json:"account_id"`
	Status             SubscriptionStatus `gorm:"type:text;not null;index:ix_subscriptions_account_status,priority:2" json:"status"`
	ProductID          string             `gorm:"type:text;not null" json:"product_id"`
	CurrentPeriodStart time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `gorm:"not null;index" json:"current_period_end"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// GatingStatuses are the states that make a subscription count for quota
// evaluation and period resets.
func GatingStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrialing}
}
