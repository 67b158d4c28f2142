// Package domain holds the per-user time balance shared by the meter and the reconciler.
package domain

import "time"

// AccountBalance is the single balance row per user. BalanceSeconds never drops below zero.
type AccountBalance struct {
	UserID         string     `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	BalanceSeconds int64      `gorm:"not null;default:0;check:chk_account_balances_non_negative,balance_seconds >= 0" json:"balance_seconds"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (AccountBalance) TableName() string { return "account_balances" }
