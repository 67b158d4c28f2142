package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID     int64 `gorm:"primaryKey"`
	UserID string
	Amount int64
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	return db
}

func TestStoreFindOneMissing(t *testing.T) {
	store := ProvideStore[ledgerRow](newTestDB(t))

	row, err := store.FindOne(context.Background(), &ledgerRow{UserID: "nobody"})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStoreFindAppliesOptions(t *testing.T) {
	ctx := context.Background()
	store := ProvideStore[ledgerRow](newTestDB(t))
	for i, amount := range []int64{30, 10, 20} {
		require.NoError(t, store.Create(ctx, &ledgerRow{ID: int64(i + 1), UserID: "uid-1", Amount: amount}))
	}
	require.NoError(t, store.Create(ctx, &ledgerRow{ID: 9, UserID: "uid-2", Amount: 99}))

	rows, err := store.Find(ctx, &ledgerRow{UserID: "uid-1"},
		Where("amount > ?", 10),
		OrderBy("amount ASC"),
		Limit(5),
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(20), rows[0].Amount)
	assert.Equal(t, int64(30), rows[1].Amount)

	one, err := store.FindOne(ctx, &ledgerRow{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, "uid-2", one.UserID)
}
