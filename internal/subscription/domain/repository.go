package domain

import (
	"context"
	"time"
)

type Repository interface {
	// FindActiveByAccountID returns the account's active-or-trialing
	// subscription, nil when none. Multiple matches resolve to the most
	// recently created one.
	FindActiveByAccountID(ctx context.Context, accountID string) (*Subscription, error)

	// ListAccountsWithElapsedPeriods returns distinct account ids whose
	// active-or-trialing subscription period ended strictly before now.
	ListAccountsWithElapsedPeriods(ctx context.Context, now time.Time, limit int) ([]string, error)
}
