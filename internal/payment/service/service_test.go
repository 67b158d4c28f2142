package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	accountrepo "github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/migration"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestReconcilePaymentCreditsOnce(t *testing.T) {
	svc, db := setupPaymentService(t)
	seedAccount(t, db, "uid-1", 300)
	ctx := context.Background()

	req := paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_test_1",
		UserID:           "uid-1",
		SecondsToCredit:  18000,
		AmountPaid:       2195,
		Currency:         "USD",
		Provider:         "stripe",
		Metadata:         map[string]any{"hours": "5"},
	}

	first, err := svc.ReconcilePayment(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, int64(18300), first.BalanceAfter)
	assert.Equal(t, "usd", first.Currency)

	second, err := svc.ReconcilePayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.BalanceAfter, second.BalanceAfter)
	assert.Equal(t, first.SecondsCredited, second.SecondsCredited)
	assert.True(t, first.RecordedAt.Equal(second.RecordedAt))

	assert.Equal(t, int64(18300), balanceOf(t, db, "uid-1"))

	var count int64
	require.NoError(t, db.Model(&paymentdomain.PaymentCredit{}).Where("payment_reference = ?", "cs_test_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcilePaymentConcurrentDuplicates(t *testing.T) {
	svc, db := setupPaymentService(t)
	seedAccount(t, db, "uid-2", 0)
	ctx := context.Background()

	req := paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_dup",
		UserID:           "uid-2",
		SecondsToCredit:  3600,
		AmountPaid:       499,
		Currency:         "usd",
	}

	results := make([]*paymentdomain.ReconcilePaymentResult, 8)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			result, err := svc.ReconcilePayment(ctx, req)
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())

	fresh := 0
	for _, result := range results {
		require.NotNil(t, result)
		if !result.Replayed {
			fresh++
		}
		assert.Equal(t, int64(3600), result.BalanceAfter)
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(3600), balanceOf(t, db, "uid-2"))
}

func TestReconcilePaymentMissingAccountRollsBack(t *testing.T) {
	svc, db := setupPaymentService(t)
	ctx := context.Background()

	_, err := svc.ReconcilePayment(ctx, paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_orphan",
		UserID:           "ghost",
		SecondsToCredit:  3600,
		AmountPaid:       499,
		Currency:         "usd",
	})
	require.ErrorIs(t, err, accountdomain.ErrAccountNotFound)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.PaymentCredit{}).Count(&count).Error)
	assert.Zero(t, count, "credit record must roll back with the failed increment")

	seedAccount(t, db, "ghost", 0)
	result, err := svc.ReconcilePayment(ctx, paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_orphan",
		UserID:           "ghost",
		SecondsToCredit:  3600,
		AmountPaid:       499,
		Currency:         "usd",
	})
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, int64(3600), result.BalanceAfter)
}

func TestReconcilePaymentValidation(t *testing.T) {
	svc, db := setupPaymentService(t)
	seedAccount(t, db, "uid-3", 0)

	valid := paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_valid",
		UserID:           "uid-3",
		SecondsToCredit:  3600,
		AmountPaid:       499,
		Currency:         "usd",
	}

	cases := []struct {
		name   string
		mutate func(*paymentdomain.ReconcilePaymentRequest)
		want   error
	}{
		{"missing reference", func(r *paymentdomain.ReconcilePaymentRequest) { r.PaymentReference = " " }, paymentdomain.ErrInvalidReference},
		{"missing user", func(r *paymentdomain.ReconcilePaymentRequest) { r.UserID = "" }, paymentdomain.ErrInvalidUserID},
		{"zero seconds", func(r *paymentdomain.ReconcilePaymentRequest) { r.SecondsToCredit = 0 }, paymentdomain.ErrInvalidSeconds},
		{"negative amount", func(r *paymentdomain.ReconcilePaymentRequest) { r.AmountPaid = -1 }, paymentdomain.ErrInvalidAmount},
		{"unsupported currency", func(r *paymentdomain.ReconcilePaymentRequest) { r.Currency = "btc" }, paymentdomain.ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.ReconcilePayment(context.Background(), req)
			assert.True(t, errors.Is(err, tc.want), "expected %v, got %v", tc.want, err)
		})
	}
	assert.Zero(t, balanceOf(t, db, "uid-3"))
}

func TestGetCreditChecksOwnership(t *testing.T) {
	svc, db := setupPaymentService(t)
	seedAccount(t, db, "uid-4", 0)
	ctx := context.Background()

	_, err := svc.ReconcilePayment(ctx, paymentdomain.ReconcilePaymentRequest{
		PaymentReference: "cs_owned",
		UserID:           "uid-4",
		SecondsToCredit:  7200,
		AmountPaid:       998,
		Currency:         "eur",
	})
	require.NoError(t, err)

	credit, err := svc.GetCredit(ctx, "uid-4", "cs_owned")
	require.NoError(t, err)
	assert.Equal(t, int64(7200), credit.BalanceAfter)
	assert.Equal(t, paymentdomain.ProviderManual, credit.Provider)

	_, err = svc.GetCredit(ctx, "someone-else", "cs_owned")
	assert.ErrorIs(t, err, paymentdomain.ErrCreditNotFound)
}

func setupPaymentService(t *testing.T) (paymentdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Config:   config.Config{SupportedCurrencies: []string{"usd", "eur"}},
		Repo:     repository.Provide(),
		Accounts: accountrepo.Provide(),
	})
	return svc, db
}

func seedAccount(t *testing.T, db *gorm.DB, userID string, balance int64) {
	t.Helper()
	_, err := accountrepo.Provide().InsertIfAbsent(context.Background(), db, userID, balance, time.Now().UTC())
	require.NoError(t, err)
}

func balanceOf(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	row, err := accountrepo.Provide().Find(context.Background(), db, userID)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row.BalanceSeconds
}
