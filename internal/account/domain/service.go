package domain

import (
	"context"
	"errors"
	"time"
)

type Balance struct {
	UserID         string     `json:"user_id"`
	BalanceSeconds int64      `json:"balance_seconds"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

type Service interface {
	// Open creates the account with the starter balance. Opening an existing account
	// returns its current balance unchanged.
	Open(ctx context.Context, userID string) (*Balance, error)
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	// Close removes the account together with its sessions, events and payment credits.
	Close(ctx context.Context, userID string) error
}

var (
	ErrInvalidUserID   = errors.New("invalid_user_id")
	ErrAccountNotFound = errors.New("account_not_found")
)
