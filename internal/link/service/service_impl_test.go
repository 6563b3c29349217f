package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	channeldomain "github.com/smallbiznis/chatlink/internal/channel/domain"
	channelrepository "github.com/smallbiznis/chatlink/internal/channel/repository"
	"github.com/smallbiznis/chatlink/internal/clock"
	"github.com/smallbiznis/chatlink/internal/config"
	linkdomain "github.com/smallbiznis/chatlink/internal/link/domain"
	"github.com/smallbiznis/chatlink/internal/seed"
	verificationdomain "github.com/smallbiznis/chatlink/internal/verification/domain"
	verificationservice "github.com/smallbiznis/chatlink/internal/verification/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func strptr(s string) *string { return &s }

type notifierStub struct {
	mu    sync.Mutex
	calls []string
}

func (n *notifierStub) Notify(channelID, externalHandle string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, channelID+"/"+externalHandle)
}

func (n *notifierStub) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type linkFixture struct {
	db        *gorm.DB
	clk       *clock.FakeClock
	node      *snowflake.Node
	linkSvc   linkdomain.Service
	verifySvc verificationdomain.Service
	notifier  *notifierStub
}

func setupLinkService(t *testing.T) *linkFixture {
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
	if err := db.Create(&channeldomain.Channel{
		ID: "telegram", DisplayName: "Telegram",
		MatchMethod: channeldomain.MatchMethodUsername, Active: true,
	}).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	verifySvc := verificationservice.NewService(verificationservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Config:      config.Config{NonceTTLHours: 24},
		ChannelRepo: channelrepository.Provide(db),
	})

	notifier := &notifierStub{}
	linkSvc := NewService(ServiceParam{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clk,
		VerificationSvc: verifySvc,
		Notifier:        notifier,
	})

	return &linkFixture{
		db:        db,
		clk:       clk,
		node:      node,
		linkSvc:   linkSvc,
		verifySvc: verifySvc,
		notifier:  notifier,
	}
}

func (f *linkFixture) createNonce(t *testing.T, accountID, handle string) string {
	t.Helper()
	resp, err := f.verifySvc.Create(context.Background(), verificationdomain.CreateRequest{
		ChannelID:      "telegram",
		AccountID:      accountID,
		ExternalHandle: handle,
	})
	if err != nil {
		t.Fatalf("create nonce: %v", err)
	}
	return resp.Nonce
}

func TestFinalizeLinksAccount(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()
	nonce := f.createNonce(t, "", "@alice")

	result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.Success || result.Error != "" || result.IsAlreadyLinked {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.UserChannelID == "" {
		t.Fatal("expected user channel id")
	}

	linked, err := f.linkSvc.Status(ctx, "acct-1", "telegram")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if linked == nil {
		t.Fatal("expected link row")
	}
	if linked.ExternalLink == nil || *linked.ExternalLink != "@alice" {
		t.Fatalf("external link = %v, want @alice", linked.ExternalLink)
	}
	if linked.VerifiedAt == nil {
		t.Fatal("expected verified_at to be set")
	}

	// The nonce is single-use: it must be gone after a successful finalize.
	if _, err := f.verifySvc.Consume(ctx, nonce, "telegram"); err != verificationdomain.ErrNonceNotFound {
		t.Fatalf("consume after finalize err = %v, want ErrNonceNotFound", err)
	}

	if calls := f.notifier.Calls(); len(calls) != 1 || calls[0] != "telegram/@alice" {
		t.Fatalf("notifier calls = %v", calls)
	}
}

func TestFinalizeInvalidNonce(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     "bogus",
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error != linkdomain.CodeInvalidNonce {
		t.Fatalf("error = %q, want %q", result.Error, linkdomain.CodeInvalidNonce)
	}
	if !result.RequiresManualSetup {
		t.Fatal("invalid nonce must route to manual setup")
	}
}

func TestFinalizeExpiredNonce(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()
	nonce := f.createNonce(t, "", "@alice")

	f.clk.Advance(25 * time.Hour)

	result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Success || result.Error != linkdomain.CodeInvalidNonce {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFinalizeValidatesInput(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	if _, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{Nonce: "n", ChannelID: "telegram"}); err != linkdomain.ErrInvalidAccount {
		t.Fatalf("missing account err = %v, want ErrInvalidAccount", err)
	}
	if _, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{AccountID: "acct-1", Nonce: "n"}); err != linkdomain.ErrInvalidChannel {
		t.Fatalf("missing channel err = %v, want ErrInvalidChannel", err)
	}
}

func TestFinalizePreBoundOwnershipConflict(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()
	nonce := f.createNonce(t, "acct-owner", "@alice")

	result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-intruder",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Success {
		t.Fatal("intruder finalize must not succeed")
	}
	if result.Error != linkdomain.CodeUserChannelConflict {
		t.Fatalf("error = %q, want %q", result.Error, linkdomain.CodeUserChannelConflict)
	}

	// The nonce survives a rejected attempt and the rightful owner can
	// still redeem it.
	result, err = f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-owner",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("owner finalize: %v", err)
	}
	if !result.Success {
		t.Fatalf("owner finalize failed: %+v", result)
	}
}

func TestFinalizeRepeatIsIdempotent(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	first, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     f.createNonce(t, "", "@alice"),
		ChannelID: "telegram",
	})
	if err != nil || !first.Success {
		t.Fatalf("first finalize: %v %+v", err, first)
	}

	// A later re-verification with a fresh nonce short-circuits on the
	// existing link and leaves the new nonce untouched.
	fresh := f.createNonce(t, "acct-1", "@alice-new")
	second, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     fresh,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !second.Success || !second.IsAlreadyLinked {
		t.Fatalf("unexpected repeat result: %+v", second)
	}
	if second.UserChannelID != first.UserChannelID {
		t.Fatalf("repeat reported %q, want %q", second.UserChannelID, first.UserChannelID)
	}
	if _, err := f.verifySvc.Consume(ctx, fresh, "telegram"); err != nil {
		t.Fatalf("short-circuited nonce should survive: %v", err)
	}

	var count int64
	if err := f.db.Model(&linkdomain.UserChannel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestFinalizeDuplicateIdentityDowngradesToSuccess(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	// Another account already owns this channel identity.
	now := f.clk.Now()
	if err := f.db.Create(&linkdomain.UserChannel{
		ID:           f.node.Generate(),
		AccountID:    "acct-other",
		ChannelID:    "telegram",
		ExternalLink: strptr("@alice"),
		CreatedAt:    now,
		UpdatedAt:    now,
		VerifiedAt:   &now,
	}).Error; err != nil {
		t.Fatalf("seed existing link: %v", err)
	}

	result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     f.createNonce(t, "", "@alice"),
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.Success || !result.IsAlreadyLinked {
		t.Fatalf("duplicate identity should downgrade to success: %+v", result)
	}
	if result.UserChannelID != "" {
		t.Fatalf("no row belongs to the caller, got id %q", result.UserChannelID)
	}

	var count int64
	if err := f.db.Model(&linkdomain.UserChannel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
}

func TestFinalizeConcurrent(t *testing.T) {
	f := setupLinkService(t)
	nonce := f.createNonce(t, "", "@alice")

	const workers = 20
	results := make([]linkdomain.FinalizeResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.linkSvc.Finalize(context.Background(), linkdomain.FinalizeRequest{
				AccountID: "acct-1",
				Nonce:     nonce,
				ChannelID: "telegram",
			})
		}(i)
	}
	wg.Wait()

	// Every worker races toward the same link; all of them must report
	// success and agree on the canonical row, no matter who consumed the
	// nonce first.
	canonical := ""
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !results[i].Success {
			t.Fatalf("worker %d unexpected outcome: %+v", i, results[i])
		}
		if results[i].UserChannelID == "" {
			t.Fatalf("worker %d reported no row id", i)
		}
		if canonical == "" {
			canonical = results[i].UserChannelID
		} else if results[i].UserChannelID != canonical {
			t.Fatalf("worker %d reported row %q, want %q", i, results[i].UserChannelID, canonical)
		}
	}

	var count int64
	if err := f.db.Model(&linkdomain.UserChannel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want exactly 1", count)
	}
}

func TestFinalizeConsumedNonceReportsExistingLink(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()
	nonce := f.createNonce(t, "", "@alice")

	first, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil || !first.Success {
		t.Fatalf("first finalize: %v %+v", err, first)
	}

	// Replaying the consumed nonce for the linked pair is a success, not an
	// invalid-nonce failure: the state the caller asked for already holds.
	second, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
		AccountID: "acct-1",
		Nonce:     nonce,
		ChannelID: "telegram",
	})
	if err != nil {
		t.Fatalf("replay finalize: %v", err)
	}
	if !second.Success || !second.IsAlreadyLinked {
		t.Fatalf("unexpected replay result: %+v", second)
	}
	if second.UserChannelID != first.UserChannelID {
		t.Fatalf("replay reported %q, want %q", second.UserChannelID, first.UserChannelID)
	}
}

func TestFinalizeHandlelessLinksDoNotCollide(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	// Opaque-id channels issue nonces with no external handle. Two accounts
	// linking the same channel that way must get their own rows.
	for _, accountID := range []string{"acct-1", "acct-2"} {
		result, err := f.linkSvc.Finalize(ctx, linkdomain.FinalizeRequest{
			AccountID: accountID,
			Nonce:     f.createNonce(t, "", ""),
			ChannelID: "telegram",
		})
		if err != nil {
			t.Fatalf("%s finalize: %v", accountID, err)
		}
		if !result.Success || result.IsAlreadyLinked || result.UserChannelID == "" {
			t.Fatalf("%s unexpected result: %+v", accountID, result)
		}

		linked, err := f.linkSvc.Status(ctx, accountID, "telegram")
		if err != nil || linked == nil {
			t.Fatalf("%s status: %v %v", accountID, err, linked)
		}
		if linked.ExternalLink != nil {
			t.Fatalf("%s external link = %q, want NULL", accountID, *linked.ExternalLink)
		}
	}

	var count int64
	if err := f.db.Model(&linkdomain.UserChannel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows = %d, want 2", count)
	}
}

func TestListByAccountPaginates(t *testing.T) {
	f := setupLinkService(t)
	ctx := context.Background()

	base := f.clk.Now()
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := f.db.Create(&linkdomain.UserChannel{
			ID:           f.node.Generate(),
			AccountID:    "acct-1",
			ChannelID:    fmt.Sprintf("channel-%d", i),
			ExternalLink: strptr(fmt.Sprintf("@alice-%d", i)),
			CreatedAt:    at,
			UpdatedAt:    at,
		}).Error; err != nil {
			t.Fatalf("seed link %d: %v", i, err)
		}
	}

	page, err := f.linkSvc.ListByAccount(ctx, linkdomain.ListRequest{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.UserChannels) != 3 || page.HasMore {
		t.Fatalf("unexpected full page: %d rows, has_more=%v", len(page.UserChannels), page.HasMore)
	}

	first, err := f.linkSvc.ListByAccount(ctx, listRequest("acct-1", "", 2))
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.UserChannels) != 2 || !first.HasMore || first.NextPageToken == "" {
		t.Fatalf("unexpected first page: %d rows, has_more=%v", len(first.UserChannels), first.HasMore)
	}

	second, err := f.linkSvc.ListByAccount(ctx, listRequest("acct-1", first.NextPageToken, 2))
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.UserChannels) != 1 || second.HasMore {
		t.Fatalf("unexpected second page: %d rows, has_more=%v", len(second.UserChannels), second.HasMore)
	}
	if second.UserChannels[0].ChannelID != "channel-2" {
		t.Fatalf("second page row = %q, want channel-2", second.UserChannels[0].ChannelID)
	}

	if _, err := f.linkSvc.ListByAccount(ctx, linkdomain.ListRequest{}); err != linkdomain.ErrInvalidAccount {
		t.Fatalf("blank account err = %v, want ErrInvalidAccount", err)
	}
}

func listRequest(accountID, token string, size int) linkdomain.ListRequest {
	req := linkdomain.ListRequest{AccountID: accountID}
	req.PageToken = token
	req.PageSize = size
	return req
}
