package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const ProviderManual = "manual"

type ReconcilePaymentRequest struct {
	PaymentReference string         `json:"payment_reference"`
	UserID           string         `json:"user_id"`
	SecondsToCredit  int64          `json:"seconds_to_credit"`
	AmountPaid       int64          `json:"amount_paid"`
	Currency         string         `json:"currency"`
	Provider         string         `json:"provider"`
	Metadata         map[string]any `json:"metadata"`
}

type ReconcilePaymentResult struct {
	PaymentReference string    `json:"payment_reference"`
	UserID           string    `json:"user_id"`
	SecondsCredited  int64     `json:"seconds_credited"`
	AmountPaid       int64     `json:"amount_paid"`
	Currency         string    `json:"currency"`
	BalanceAfter     int64     `json:"balance_after"`
	Replayed         bool      `json:"replayed"`
	RecordedAt       time.Time `json:"recorded_at"`
}

type Service interface {
	// ReconcilePayment credits the balance once per payment reference. Replays return
	// the first result with Replayed set and never fail.
	ReconcilePayment(context.Context, ReconcilePaymentRequest) (*ReconcilePaymentResult, error)
	GetCredit(ctx context.Context, userID, paymentReference string) (*PaymentCredit, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type Repository interface {
	InsertCreditIfAbsent(ctx context.Context, db *gorm.DB, credit *PaymentCredit) (bool, error)
	FindCredit(ctx context.Context, db *gorm.DB, paymentReference string) (*PaymentCredit, error)
	SetBalanceAfter(ctx context.Context, db *gorm.DB, id snowflake.ID, balanceAfter int64) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidReference = errors.New("invalid_payment_reference")
	ErrInvalidUserID    = errors.New("invalid_user_id")
	ErrInvalidSeconds   = errors.New("invalid_seconds_to_credit")
	ErrInvalidAmount    = errors.New("invalid_amount_paid")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidMetadata  = errors.New("invalid_metadata")
	ErrCreditNotFound   = errors.New("payment_credit_not_found")

	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
