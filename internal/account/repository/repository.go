package repository

import (
	"context"
	"time"

	"github.com/brujulacripto/creditledger/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, userID string, balanceSeconds int64, now time.Time) (bool, error)
	Find(ctx context.Context, db *gorm.DB, userID string) (*domain.AccountBalance, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, userID string) (*domain.AccountBalance, error)

	// DecrementIfCovered subtracts seconds only while the balance covers them.
	DecrementIfCovered(ctx context.Context, db *gorm.DB, userID string, seconds int64, now time.Time) (bool, error)
	// CompareAndSet moves the balance from expected to next in one statement.
	CompareAndSet(ctx context.Context, db *gorm.DB, userID string, expected, next int64, now time.Time) (bool, error)
	Increment(ctx context.Context, db *gorm.DB, userID string, seconds int64, now time.Time) (bool, error)

	DeleteAccount(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, userID string, balanceSeconds int64, now time.Time) (bool, error) {
	row := domain.AccountBalance{
		UserID:         userID,
		BalanceSeconds: balanceSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID string) (*domain.AccountBalance, error) {
	var rows []domain.AccountBalance
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, balance_seconds, last_activity_at, created_at, updated_at
		 FROM account_balances
		 WHERE user_id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, userID string) (*domain.AccountBalance, error) {
	query := `SELECT user_id, balance_seconds, last_activity_at, created_at, updated_at
		 FROM account_balances
		 WHERE user_id = ?`
	if supportsRowLocks(db) {
		query += " FOR UPDATE"
	}
	var rows []domain.AccountBalance
	if err := db.WithContext(ctx).Raw(query, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) DecrementIfCovered(ctx context.Context, db *gorm.DB, userID string, seconds int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE account_balances
		 SET balance_seconds = balance_seconds - ?, last_activity_at = ?, updated_at = ?
		 WHERE user_id = ? AND balance_seconds >= ?`,
		seconds,
		now,
		now,
		userID,
		seconds,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CompareAndSet(ctx context.Context, db *gorm.DB, userID string, expected, next int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE account_balances
		 SET balance_seconds = ?, last_activity_at = ?, updated_at = ?
		 WHERE user_id = ? AND balance_seconds = ?`,
		next,
		now,
		now,
		userID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID string, seconds int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE account_balances
		 SET balance_seconds = balance_seconds + ?, last_activity_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		seconds,
		now,
		now,
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteAccount expects to run inside a transaction.
func (r *repo) DeleteAccount(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	for _, table := range []string{"usage_events", "usage_sessions", "payment_credits"} {
		if err := db.WithContext(ctx).Exec("DELETE FROM "+table+" WHERE user_id = ?", userID).Error; err != nil {
			return 0, err
		}
	}
	result := db.WithContext(ctx).Exec(`DELETE FROM account_balances WHERE user_id = ?`, userID)
	return result.RowsAffected, result.Error
}

func supportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
