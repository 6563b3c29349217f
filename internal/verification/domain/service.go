package domain

import (
	"context"
	"errors"
	"time"
)

type CreateRequest struct {
	ChannelID      string         `json:"channelId"`
	AccountID      string         `json:"accountId"`
	ExternalHandle string         `json:"externalHandle"`
	Metadata       map[string]any `json:"metadata"`
}

type CreateResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ValidateRequest struct {
	Nonce     string `json:"nonce"`
	ChannelID string `json:"channelId"`
}

// ValidateResponse distinguishes "never existed" from "expired" for UX only;
// both are rejected identically downstream.
type ValidateResponse struct {
	IsValid        bool `json:"isValid"`
	IsExpired      bool `json:"isExpired"`
	IsRegistration bool `json:"isRegistration"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (CreateResponse, error)
	Validate(ctx context.Context, req ValidateRequest) (ValidateResponse, error)

	// Consume fetches an unexpired verification by (nonce, channel). The
	// returned row stays in place until Delete; finalize owns the lifecycle.
	Consume(ctx context.Context, nonce, channelID string) (*ChannelVerification, error)
	// Bind sets the verification's account once, for the registration flow.
	Bind(ctx context.Context, id int64, accountID string) error
	Delete(ctx context.Context, id int64) error

	// CleanupExpired removes verifications whose expiry passed more than
	// olderThan ago and returns the number of rows deleted.
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

var (
	ErrInvalidChannel = errors.New("invalid_channel")
	ErrNonceNotFound  = errors.New("nonce_not_found")
	ErrNonceExpired   = errors.New("nonce_expired")
)
