package domain

import (
	"context"
	"net/http"
	"time"
)

// PaymentConfirmation is the canonical "this payment settled" event parsed by adapters.
type PaymentConfirmation struct {
	Provider         string
	ProviderEventID  string
	EventType        string
	PaymentReference string
	UserID           string
	Hours            int64
	SecondsToCredit  int64
	AmountPaid       int64
	Currency         string
	OccurredAt       time.Time
	Metadata         map[string]any
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
	Now      func() time.Time
}

type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse returns ErrEventIgnored for event types that never credit a balance.
	Parse(ctx context.Context, payload []byte) (*PaymentConfirmation, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
