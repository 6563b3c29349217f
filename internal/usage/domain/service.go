package domain

import (
	"context"
	"errors"
)

type Totals struct {
	TokensUsed   int64 `json:"tokensUsed"`
	RequestsUsed int64 `json:"requestsUsed"`
}

type Service interface {
	// Increment atomically adds the deltas to the link's counters, creating
	// the record with the delta as initial value when absent. Safe under
	// concurrent calls for the same link: final totals are order-independent.
	Increment(ctx context.Context, userChannelID int64, tokensDelta, requestsDelta int64) error

	// Get reads the counters; an absent record reads as zero, never an error.
	Get(ctx context.Context, userChannelID int64) (Totals, error)
}

var ErrInvalidUserChannel = errors.New("invalid_user_channel")
