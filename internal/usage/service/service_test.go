package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	accountrepo "github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/migration"
	"github.com/brujulacripto/creditledger/internal/usage/domain"
	"github.com/brujulacripto/creditledger/internal/usage/repository"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestStartIsIdempotent(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-1", 120)
	ctx := context.Background()

	first, err := svc.ApplyUsageAction(ctx, startReq("uid-1", "s-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := svc.ApplyUsageAction(ctx, startReq("uid-1", "s-1"))
	if err != nil {
		t.Fatalf("repeat start: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeat start changed the result (-first +second):\n%s", diff)
	}
	if second.BalanceAfter != 120 || second.State != domain.SessionActive {
		t.Fatalf("unexpected start result %+v", second)
	}
	if got := countEvents(t, db, "uid-1", "s-1"); got != 1 {
		t.Fatalf("expected exactly one start event, got %d", got)
	}
	if got := balanceOf(t, db, "uid-1"); got != 120 {
		t.Fatalf("expected balance 120, got %d", got)
	}
}

func TestStartGeneratesSessionID(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-gen", 10)

	result, err := svc.ApplyUsageAction(context.Background(), startReq("uid-gen", ""))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(result.SessionID) != 26 {
		t.Fatalf("expected a generated ULID session id, got %q", result.SessionID)
	}
}

func TestIncrementRejectsInsufficientBalance(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-2", 10)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-2", "s-2")); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.ApplyUsageAction(ctx, incrementReq("uid-2", "s-2", 30))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	var insufficient *domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected typed insufficient balance error, got %T", err)
	}
	if insufficient.Available != 10 || insufficient.Requested != 30 {
		t.Fatalf("unexpected figures %+v", insufficient)
	}

	if got := balanceOf(t, db, "uid-2"); got != 10 {
		t.Fatalf("expected balance unchanged at 10, got %d", got)
	}
	if got := countEvents(t, db, "uid-2", "s-2"); got != 1 {
		t.Fatalf("expected only the start event, got %d", got)
	}
}

func TestIncrementChargesAndAudits(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-3", 100)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-3", "s-3")); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := svc.ApplyUsageAction(ctx, incrementReq("uid-3", "s-3", 30))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	second, err := svc.ApplyUsageAction(ctx, incrementReq("uid-3", "s-3", 20))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}

	if first.BalanceBefore != 100 || first.BalanceAfter != 70 || first.SecondsApplied != 30 {
		t.Fatalf("unexpected first increment %+v", first)
	}
	if second.BalanceBefore != 70 || second.BalanceAfter != 50 || second.SecondsConsumedInSession != 50 {
		t.Fatalf("unexpected second increment %+v", second)
	}
}

func TestEndClampsToBalance(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-4", 5)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-4", "s-4")); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := svc.ApplyUsageAction(ctx, endReq("uid-4", "s-4", 20))
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	if result.SecondsApplied != 5 || result.BalanceAfter != 0 {
		t.Fatalf("expected 5 applied and balance 0, got %+v", result)
	}
	if result.State != domain.SessionCompletedWithShortfall {
		t.Fatalf("expected shortfall state, got %s", result.State)
	}

	session, err := svc.GetSession(ctx, "uid-4", "s-4")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.State != domain.SessionCompletedWithShortfall || session.EndedAt == nil {
		t.Fatalf("expected closed session, got %+v", session)
	}
}

func TestEndCoveredCompletes(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-5", 60)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-5", "s-5")); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := svc.ApplyUsageAction(ctx, endReq("uid-5", "s-5", 15))
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if result.State != domain.SessionCompleted || result.BalanceAfter != 45 {
		t.Fatalf("unexpected end result %+v", result)
	}
}

func TestClosedSessionRejectsActions(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-6", 60)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-6", "s-6")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.ApplyUsageAction(ctx, endReq("uid-6", "s-6", 0)); err != nil {
		t.Fatalf("end: %v", err)
	}

	for _, req := range []domain.ApplyUsageActionRequest{
		startReq("uid-6", "s-6"),
		incrementReq("uid-6", "s-6", 1),
		endReq("uid-6", "s-6", 1),
	} {
		if _, err := svc.ApplyUsageAction(ctx, req); !errors.Is(err, domain.ErrSessionNotActive) {
			t.Fatalf("%s on closed session: expected ErrSessionNotActive, got %v", req.ActionKind, err)
		}
	}
	if got := balanceOf(t, db, "uid-6"); got != 60 {
		t.Fatalf("expected balance 60, got %d", got)
	}
}

func TestUnknownSessionAndMismatch(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-7", 60)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, incrementReq("uid-7", "missing", 1)); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-7", "s-7")); err != nil {
		t.Fatalf("start: %v", err)
	}
	mismatch := incrementReq("uid-7", "s-7", 1)
	mismatch.ServiceKind = domain.ServiceKindChatbot
	if _, err := svc.ApplyUsageAction(ctx, mismatch); !errors.Is(err, domain.ErrSessionServiceMismatch) {
		t.Fatalf("expected ErrSessionServiceMismatch, got %v", err)
	}

	if _, err := svc.ApplyUsageAction(ctx, startReq("nobody", "s-x")); !errors.Is(err, accountdomain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.ApplyUsageAction(ctx, endReq("nobody", "s-x", 5)); !errors.Is(err, accountdomain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on end, got %v", err)
	}
}

func TestValidationHappensBeforeMutation(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-8", 60)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.ApplyUsageActionRequest
		want error
	}{
		{"empty user", domain.ApplyUsageActionRequest{ServiceKind: "tools", ActionKind: "start"}, domain.ErrInvalidUserID},
		{"unknown service", domain.ApplyUsageActionRequest{UserID: "uid-8", ServiceKind: "casino", ActionKind: "start"}, domain.ErrInvalidServiceKind},
		{"unknown action", domain.ApplyUsageActionRequest{UserID: "uid-8", ServiceKind: "tools", ActionKind: "pause"}, domain.ErrInvalidActionKind},
		{"zero increment", incrementReq("uid-8", "s", 0), domain.ErrInvalidSeconds},
		{"negative end", endReq("uid-8", "s", -1), domain.ErrInvalidSeconds},
		{"increment without session", incrementReq("uid-8", "", 5), domain.ErrInvalidSessionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ApplyUsageAction(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := balanceOf(t, db, "uid-8"); got != 60 {
		t.Fatalf("expected balance 60, got %d", got)
	}
}

func TestEventsReconstructBalanceHistory(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-9", 200)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-9", "s-9")); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 40; i++ {
		_, err := svc.ApplyUsageAction(ctx, incrementReq("uid-9", "s-9", int64(rng.Intn(25)+1)))
		if err != nil && !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if _, err := svc.ApplyUsageAction(ctx, endReq("uid-9", "s-9", 30)); err != nil {
		t.Fatalf("end: %v", err)
	}

	var events []domain.UsageEvent
	if err := db.Where("user_id = ?", "uid-9").Order("id asc").Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	running := int64(200)
	for _, event := range events {
		if event.BalanceBefore != running {
			t.Fatalf("event %s: expected before %d, got %d", event.ID, running, event.BalanceBefore)
		}
		if event.BalanceAfter != event.BalanceBefore-event.SecondsApplied || event.BalanceAfter < 0 {
			t.Fatalf("event %s does not reconcile: %+v", event.ID, event)
		}
		running = event.BalanceAfter
	}
	if got := balanceOf(t, db, "uid-9"); got != running {
		t.Fatalf("expected final balance %d, got %d", running, got)
	}
}

func TestConcurrentIncrementsNeverOverdraw(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-10", 100)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-10", "s-10")); err != nil {
		t.Fatalf("start: %v", err)
	}

	var g errgroup.Group
	results := make([]error, 20)
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.ApplyUsageAction(ctx, incrementReq("uid-10", "s-10", 7))
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	applied := 0
	for _, err := range results {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, domain.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if applied != 14 {
		t.Fatalf("expected 14 charges of 7 to fit in 100, got %d", applied)
	}
	if got := balanceOf(t, db, "uid-10"); got != 2 {
		t.Fatalf("expected balance 2, got %d", got)
	}
}

func TestListEventsPaginates(t *testing.T) {
	svc, db := setupUsageService(t)
	seedAccount(t, db, "uid-11", 100)
	ctx := context.Background()

	if _, err := svc.ApplyUsageAction(ctx, startReq("uid-11", "s-11")); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := svc.ApplyUsageAction(ctx, incrementReq("uid-11", "s-11", 1)); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	first, err := svc.ListEvents(ctx, domain.ListEventsRequest{UserID: "uid-11", PageSize: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Events) != 3 || !first.HasMore || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first.PageInfo)
	}
	second, err := svc.ListEvents(ctx, domain.ListEventsRequest{UserID: "uid-11", PageSize: 3, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Events) != 2 || second.HasMore {
		t.Fatalf("unexpected second page %+v", second.PageInfo)
	}
	if second.Events[len(second.Events)-1].ActionKind != domain.ActionStart {
		t.Fatalf("expected the oldest event to be the start")
	}
}

func setupUsageService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:usage_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Accounts: accountrepo.Provide(),
	})
	return svc, db
}

func seedAccount(t *testing.T, db *gorm.DB, userID string, balance int64) {
	t.Helper()
	if _, err := accountrepo.Provide().InsertIfAbsent(context.Background(), db, userID, balance, time.Now().UTC()); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func balanceOf(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	row, err := accountrepo.Provide().Find(context.Background(), db, userID)
	if err != nil || row == nil {
		t.Fatalf("load balance: %v", err)
	}
	return row.BalanceSeconds
}

func countEvents(t *testing.T, db *gorm.DB, userID, sessionID string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&domain.UsageEvent{}).Where("user_id = ? AND session_id = ?", userID, sessionID).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func startReq(userID, sessionID string) domain.ApplyUsageActionRequest {
	return domain.ApplyUsageActionRequest{
		UserID:      userID,
		ServiceKind: domain.ServiceKindTools,
		ActionKind:  domain.ActionStart,
		SessionID:   sessionID,
	}
}

func incrementReq(userID, sessionID string, seconds int64) domain.ApplyUsageActionRequest {
	return domain.ApplyUsageActionRequest{
		UserID:           userID,
		ServiceKind:      domain.ServiceKindTools,
		ActionKind:       domain.ActionIncrement,
		SecondsRequested: seconds,
		SessionID:        sessionID,
	}
}

func endReq(userID, sessionID string, seconds int64) domain.ApplyUsageActionRequest {
	return domain.ApplyUsageActionRequest{
		UserID:           userID,
		ServiceKind:      domain.ServiceKindTools,
		ActionKind:       domain.ActionEnd,
		SecondsRequested: seconds,
		SessionID:        sessionID,
	}
}
