package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	channeldomain "github.com/smallbiznis/chatlink/internal/channel/domain"
	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/config"
	"github.com/smallbiznis/chatlink/internal/metrics"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	ChannelRepo channeldomain.Repository
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ttl         time.Duration
	channelRepo channeldomain.Repository
	metrics     *metrics.Metrics
}

func NewService(p ServiceParam) verificationdomain.Service {
	ttl := time.Duration(p.Config.NonceTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("verification.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		ttl:         ttl,
		channelRepo: p.ChannelRepo,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req verificationdomain.CreateRequest) (verificationdomain.CreateResponse, error) {
	channelID := strings.TrimSpace(req.ChannelID)
	if channelID == "" {
		return verificationdomain.CreateResponse{}, verificationdomain.ErrInvalidChannel
	}
	if _, err := s.channelRepo.FindActive(ctx, channelID); err != nil {
		if errors.Is(err, channeldomain.ErrChannelNotFound) || errors.Is(err, channeldomain.ErrChannelInactive) {
			return verificationdomain.CreateResponse{}, verificationdomain.ErrInvalidChannel
		}
		return verificationdomain.CreateResponse{}, err
	}

	now := s.clock.Now()
	handle := strings.TrimSpace(req.ExternalHandle)

	// Repeated registration attempts for the same contact reuse the pending
	// nonce instead of minting a fresh one each message.
	if handle != "" {
		existing, err := s.findPending(ctx, channelID, handle, now)
		if err != nil {
			return verificationdomain.CreateResponse{}, err
		}
		if existing != nil {
			if s.metrics != nil {
				s.metrics.NonceDeduped.Inc()
			}
			return verificationdomain.CreateResponse{
				Nonce:     existing.Nonce,
				ExpiresAt: existing.ExpiresAt,
			}, nil
		}
	}

	nonce, err := generateNonce()
	if err != nil {
		return verificationdomain.CreateResponse{}, err
	}

	record := verificationdomain.ChannelVerification{
		ID:             s.genID.Generate(),
		Nonce:          nonce,
		ChannelID:      channelID,
		AccountID:      strings.TrimSpace(req.AccountID),
		ExternalHandle: handle,
		ExpiresAt:      now.Add(s.ttl),
		CreatedAt:      now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return verificationdomain.CreateResponse{}, err
	}

	if s.metrics != nil {
		s.metrics.NoncesIssued.Inc()
	}
	s.log.Debug("verification nonce issued",
		zap.String("channel_id", channelID),
		zap.Time("expires_at", record.ExpiresAt),
	)

	return verificationdomain.CreateResponse{
		Nonce:     record.Nonce,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) Validate(ctx context.Context, req verificationdomain.ValidateRequest) (verificationdomain.ValidateResponse, error) {
	record, err := s.findByNonce(ctx, req.Nonce, req.ChannelID)
	if err != nil {
		return verificationdomain.ValidateResponse{}, err
	}
	if record == nil {
		return verificationdomain.ValidateResponse{}, nil
	}

	resp := verificationdomain.ValidateResponse{
		IsRegistration: record.AccountID == "",
	}
	if !record.ExpiresAt.After(s.clock.Now()) {
		resp.IsExpired = true
		return resp, nil
	}
	resp.IsValid = true
	return resp, nil
}

func (s *Service) Consume(ctx context.Context, nonce, channelID string) (*verificationdomain.ChannelVerification, error) {
	record, err := s.findByNonce(ctx, nonce, channelID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, verificationdomain.ErrNonceNotFound
	}
	if !record.ExpiresAt.After(s.clock.Now()) {
		return nil, verificationdomain.ErrNonceExpired
	}
	return record, nil
}

func (s *Service) Bind(ctx context.Context, id int64, accountID string) error {
	return s.db.WithContext(ctx).
		Model(&verificationdomain.ChannelVerification{}).
		Where("id = ? AND (account_id IS NULL OR account_id = '')", id).
		Update("account_id", accountID).Error
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&verificationdomain.ChannelVerification{}).Error
}

func (s *Service) CleanupExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&verificationdomain.ChannelVerification{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("expired verifications removed", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *Service) findByNonce(ctx context.Context, nonce, channelID string) (*verificationdomain.ChannelVerification, error) {
	nonce = strings.TrimSpace(nonce)
	channelID = strings.TrimSpace(channelID)
	if nonce == "" || channelID == "" {
		return nil, nil
	}

	var record verificationdomain.ChannelVerification
	err := s.db.WithContext(ctx).
		Where("nonce = ? AND channel_id = ?", nonce, channelID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) findPending(ctx context.Context, channelID, handle string, now time.Time) (*verificationdomain.ChannelVerification, error) {
	var record verificationdomain.ChannelVerification
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND external_handle = ? AND expires_at > ?", channelID, handle, now).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
