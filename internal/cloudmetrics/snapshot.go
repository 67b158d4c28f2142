package cloudmetrics

import (
	"context"
	"runtime"

	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	usagedomain "github.com/brujulacripto/creditledger/internal/usage/domain"
	"gorm.io/gorm"
)

// ReadSnapshot aggregates the ledger tables. Counts are read without a
// transaction; the gauges tolerate slight skew between them.
func ReadSnapshot(ctx context.Context, db *gorm.DB) (Snapshot, error) {
	var snap Snapshot
	if db == nil {
		return snap, nil
	}
	conn := db.WithContext(ctx)

	var totals struct {
		Accounts    int64
		Outstanding int64
	}
	if err := conn.Model(&accountdomain.AccountBalance{}).
		Select("COUNT(*) AS accounts, COALESCE(SUM(balance_seconds), 0) AS outstanding").
		Scan(&totals).Error; err != nil {
		return snap, err
	}
	snap.Accounts = totals.Accounts
	snap.OutstandingSecs = totals.Outstanding

	if err := conn.Model(&usagedomain.UsageSession{}).
		Where("state = ?", usagedomain.SessionActive).
		Count(&snap.ActiveSessions).Error; err != nil {
		return snap, err
	}
	if err := conn.Model(&usagedomain.UsageSession{}).
		Where("state = ?", usagedomain.SessionCompletedWithShortfall).
		Count(&snap.ShortfallEnds).Error; err != nil {
		return snap, err
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.MemoryUsageBytes = mem.Sys
	return snap, nil
}
