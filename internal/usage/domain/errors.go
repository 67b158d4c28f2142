package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUserID          = errors.New("invalid_user_id")
	ErrInvalidServiceKind     = errors.New("invalid_service_kind")
	ErrInvalidActionKind      = errors.New("invalid_action_kind")
	ErrInvalidSeconds         = errors.New("invalid_seconds_requested")
	ErrInvalidSessionID       = errors.New("invalid_session_id")
	ErrSessionServiceMismatch = errors.New("session_service_mismatch")

	ErrSessionNotFound  = errors.New("session_not_found")
	ErrSessionNotActive = errors.New("session_not_active")

	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrBalanceContention   = errors.New("balance_contention")
)

// InsufficientBalanceError carries the figures a client needs to offer a top-up.
type InsufficientBalanceError struct {
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %ds, requested %ds", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
