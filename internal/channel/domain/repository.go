package domain

import (
	"context"
	"errors"
)

var (
	ErrChannelNotFound = errors.New("channel_not_found")
	ErrChannelInactive = errors.New("channel_inactive")
)

type Repository interface {
	// FindActive returns the channel iff it exists and is active.
	FindActive(ctx context.Context, id string) (*Channel, error)
	List(ctx context.Context) ([]Channel, error)
}
