// Package domain defines quota resolution for an account's channels against
// its billing tier.
package domain

import (
	"context"
	"errors"
	"time"
)

// LimitsAndUsage pairs live usage totals with the active tier's limits and
// period window. Limits are nil when the account has no active-or-trialing
// subscription or the product has no feature row; the gating decision belongs
// to the caller.
type LimitsAndUsage struct {
	TokensUsed    int64      `json:"tokensUsed"`
	RequestsUsed  int64      `json:"requestsUsed"`
	TokensLimit   *int64     `json:"tokensLimit"`
	RequestsLimit *int64     `json:"requestsLimit"`
	HistoryLimit  *int64     `json:"historyLimit"`
	PeriodStart   *time.Time `json:"periodStart"`
	PeriodEnd     *time.Time `json:"periodEnd"`
}

// AggregateUsage sums across all of an account's channels, independent of
// tier. Reporting only, never gating.
type AggregateUsage struct {
	TotalTokens   int64      `json:"totalTokens"`
	TotalRequests int64      `json:"totalRequests"`
	LastActivity  *time.Time `json:"lastActivity"`
}

type Service interface {
	GetLimitsAndUsage(ctx context.Context, accountID string) (LimitsAndUsage, error)
	GetAggregateUsage(ctx context.Context, accountID string) (AggregateUsage, error)
}

var ErrInvalidAccount = errors.New("invalid_account")
