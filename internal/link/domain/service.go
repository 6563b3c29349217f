package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/chatlink/pkg/db/pagination"
)

// Finalize outcome codes surfaced to callers.
const (
	CodeInvalidNonce        = "invalid_nonce"
	CodeUserChannelConflict = "user_channel_conflict"
	CodeFinalizeTransaction = "finalize_transaction_error"
)

type FinalizeRequest struct {
	AccountID string `json:"accountId"`
	Nonce     string `json:"nonce"`
	ChannelID string `json:"channelId"`
}

// FinalizeResult is the structured outcome of the linking state machine.
// Protocol failures are reported here rather than as transport errors;
// RequiresManualSetup tells the caller to present a recovery path instead of
// retrying blindly.
type FinalizeResult struct {
	Success             bool   `json:"success"`
	UserChannelID       string `json:"userChannelId,omitempty"`
	Error               string `json:"error,omitempty"`
	RequiresManualSetup bool   `json:"requiresManualSetup,omitempty"`
	IsAlreadyLinked     bool   `json:"isAlreadyLinked,omitempty"`
}

type ListRequest struct {
	AccountID string `form:"accountId"`
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	UserChannels []UserChannel `json:"user_channels"`
}

type Service interface {
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)

	// Status returns the account's link for a channel, nil when unlinked.
	Status(ctx context.Context, accountID, channelID string) (*UserChannel, error)
	ListByAccount(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidAccount = errors.New("invalid_account")
	ErrInvalidChannel = errors.New("invalid_channel")
)
