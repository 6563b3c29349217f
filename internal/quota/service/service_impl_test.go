package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	quotadomain "github.com/smallbiznis/chatlink/internal/quota/domain"
	"github.com/smallbiznis/chatlink/internal/seed"
	subscriptiondomain "github.com/smallbiznis/chatlink/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/chatlink/internal/subscription/repository"
	tierdomain "github.com/smallbiznis/chatlink/internal/tier/domain"
	tierrepository "github.com/smallbiznis/chatlink/internal/tier/repository"
	usagedomain "github.com/smallbiznis/chatlink/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupQuotaService(t *testing.T) (quotadomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := seed.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		SubRepo:  subscriptionrepository.Provide(db),
		TierRepo: tierrepository.Provide(db),
	})
	return svc, db, node
}

func seedLinkWithUsage(t *testing.T, db *gorm.DB, node *snowflake.Node, accountID, channelID string, tokens, requests int64, at time.Time) {
	t.Helper()
	handle := accountID + "@" + channelID
	link := linkdomain.UserChannel{
		ID:           node.Generate(),
		AccountID:    accountID,
		ChannelID:    channelID,
		ExternalLink: &handle,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}
	record := usagedomain.UsageRecord{
		UserChannelID: link.ID,
		TokensUsed:    tokens,
		RequestsUsed:  requests,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}
}

func TestGetLimitsAndUsageWithActiveSubscription(t *testing.T) {
	svc, db, node := setupQuotaService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seedLinkWithUsage(t, db, node, "acct-1", "telegram", 500, 12, now)
	seedLinkWithUsage(t, db, node, "acct-1", "whatsapp", 100, 3, now.Add(time.Hour))

	periodStart := now.AddDate(0, 0, -10)
	periodEnd := now.AddDate(0, 0, 20)
	if err := db.Create(&subscriptiondomain.Subscription{
		ID:                 "sub_1",
		AccountID:          "acct-1",
		Status:             subscriptiondomain.SubscriptionStatusActive,
		ProductID:          "prod_pro",
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CreatedAt:          now,
	}).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	if err := db.Create(&tierdomain.TierFeatures{
		ProductID:     "prod_pro",
		TokensLimit:   100000,
		RequestsLimit: 1000,
		HistoryLimit:  30,
	}).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}

	result, err := svc.GetLimitsAndUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if result.TokensUsed != 600 || result.RequestsUsed != 15 {
		t.Fatalf("usage = %d/%d, want 600/15", result.TokensUsed, result.RequestsUsed)
	}
	if result.TokensLimit == nil || *result.TokensLimit != 100000 {
		t.Fatalf("tokens limit = %v, want 100000", result.TokensLimit)
	}
	if result.RequestsLimit == nil || *result.RequestsLimit != 1000 {
		t.Fatalf("requests limit = %v, want 1000", result.RequestsLimit)
	}
	if result.PeriodStart == nil || !result.PeriodStart.Equal(periodStart) {
		t.Fatalf("period start = %v, want %v", result.PeriodStart, periodStart)
	}
	if result.PeriodEnd == nil || !result.PeriodEnd.Equal(periodEnd) {
		t.Fatalf("period end = %v, want %v", result.PeriodEnd, periodEnd)
	}
}

func TestGetLimitsAndUsageWithoutSubscription(t *testing.T) {
	svc, db, node := setupQuotaService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seedLinkWithUsage(t, db, node, "acct-free", "telegram", 42, 7, now)

	result, err := svc.GetLimitsAndUsage(ctx, "acct-free")
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if result.TokensUsed != 42 || result.RequestsUsed != 7 {
		t.Fatalf("usage = %d/%d, want 42/7", result.TokensUsed, result.RequestsUsed)
	}
	if result.TokensLimit != nil || result.RequestsLimit != nil || result.HistoryLimit != nil {
		t.Fatalf("limits must be nil without a subscription: %+v", result)
	}
	if result.PeriodStart != nil || result.PeriodEnd != nil {
		t.Fatal("period must be nil without a subscription")
	}
}

func TestGetLimitsAndUsageUnknownProduct(t *testing.T) {
	svc, db, _ := setupQuotaService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := db.Create(&subscriptiondomain.Subscription{
		ID:                 "sub_1",
		AccountID:          "acct-1",
		Status:             subscriptiondomain.SubscriptionStatusTrialing,
		ProductID:          "prod_unmapped",
		CurrentPeriodStart: now.AddDate(0, 0, -1),
		CurrentPeriodEnd:   now.AddDate(0, 0, 29),
		CreatedAt:          now,
	}).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	result, err := svc.GetLimitsAndUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if result.PeriodStart == nil || result.PeriodEnd == nil {
		t.Fatal("period window should come from the subscription")
	}
	if result.TokensLimit != nil {
		t.Fatal("unmapped product must yield nil limits")
	}
}

func TestGetLimitsAndUsagePicksMostRecentSubscription(t *testing.T) {
	svc, db, _ := setupQuotaService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	subs := []subscriptiondomain.Subscription{
		{
			ID: "sub_old", AccountID: "acct-1",
			Status: subscriptiondomain.SubscriptionStatusActive, ProductID: "prod_basic",
			CurrentPeriodStart: now.AddDate(0, -1, 0), CurrentPeriodEnd: now.AddDate(0, 0, 1),
			CreatedAt: now.AddDate(0, -1, 0),
		},
		{
			ID: "sub_new", AccountID: "acct-1",
			Status: subscriptiondomain.SubscriptionStatusActive, ProductID: "prod_pro",
			CurrentPeriodStart: now, CurrentPeriodEnd: now.AddDate(0, 1, 0),
			CreatedAt: now,
		},
	}
	if err := db.Create(&subs).Error; err != nil {
		t.Fatalf("seed subscriptions: %v", err)
	}
	tiers := []tierdomain.TierFeatures{
		{ProductID: "prod_basic", TokensLimit: 1000, RequestsLimit: 10, HistoryLimit: 7},
		{ProductID: "prod_pro", TokensLimit: 100000, RequestsLimit: 1000, HistoryLimit: 30},
	}
	if err := db.Create(&tiers).Error; err != nil {
		t.Fatalf("seed tiers: %v", err)
	}

	result, err := svc.GetLimitsAndUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("get limits: %v", err)
	}
	if result.TokensLimit == nil || *result.TokensLimit != 100000 {
		t.Fatalf("expected the most recent subscription's tier, got %v", result.TokensLimit)
	}
}

func TestGetAggregateUsage(t *testing.T) {
	svc, db, node := setupQuotaService(t)
	ctx := context.Background()
	early := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)

	seedLinkWithUsage(t, db, node, "acct-1", "telegram", 500, 12, early)
	seedLinkWithUsage(t, db, node, "acct-1", "whatsapp", 100, 3, late)
	seedLinkWithUsage(t, db, node, "acct-2", "telegram", 999, 99, late)

	agg, err := svc.GetAggregateUsage(ctx, "acct-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.TotalTokens != 600 || agg.TotalRequests != 15 {
		t.Fatalf("aggregate = %d/%d, want 600/15", agg.TotalTokens, agg.TotalRequests)
	}
	if agg.LastActivity == nil || !agg.LastActivity.Equal(late) {
		t.Fatalf("last activity = %v, want %v", agg.LastActivity, late)
	}

	empty, err := svc.GetAggregateUsage(ctx, "acct-none")
	if err != nil {
		t.Fatalf("aggregate empty: %v", err)
	}
	if empty.TotalTokens != 0 || empty.TotalRequests != 0 || empty.LastActivity != nil {
		t.Fatalf("empty aggregate = %+v", empty)
	}

	if _, err := svc.GetAggregateUsage(ctx, " "); err != quotadomain.ErrInvalidAccount {
		t.Fatalf("blank account err = %v, want ErrInvalidAccount", err)
	}
}
