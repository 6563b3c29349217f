package domain

import "context"

type Repository interface {
	// FindByProductID returns the tier's limits, nil for unknown products.
	FindByProductID(ctx context.Context, productID string) (*TierFeatures, error)
}
