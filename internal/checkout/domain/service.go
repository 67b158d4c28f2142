package domain

import (
	"context"
	"errors"
)

const (
	MetadataUserID          = "user_id"
	MetadataHours           = "hours"
	MetadataSecondsToCredit = "seconds_to_credit"
)

type CreateCheckoutRequest struct {
	UserID         string
	Hours          int64
	IdempotencyKey string
}

type CheckoutSession struct {
	SessionID   string            `json:"session_id"`
	CheckoutURL string            `json:"checkout_url"`
	Hours       int64             `json:"hours"`
	Amount      int64             `json:"amount"`
	AmountText  string            `json:"amount_text"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_processor.go -package=mocks

type Service interface {
	CreateCheckoutSession(context.Context, CreateCheckoutRequest) (*CheckoutSession, error)
}

// ProcessorRequest is what a payment processor needs to open a hosted checkout.
type ProcessorRequest struct {
	CustomerRef        string
	Amount             int64
	Currency           string
	ProductDescription string
	Metadata           map[string]string
	IdempotencyKey     string
}

type ProcessorSession struct {
	ID  string
	URL string
}

type Processor interface {
	CreateSession(context.Context, ProcessorRequest) (*ProcessorSession, error)
}

var (
	ErrInvalidUserID       = errors.New("invalid_user_id")
	ErrProcessorNotReady   = errors.New("checkout_processor_not_configured")
	ErrProcessorFailed     = errors.New("checkout_processor_failed")
	ErrInvalidProcessorRes = errors.New("checkout_processor_response_invalid")
)
