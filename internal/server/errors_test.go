package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	checkoutdomain "github.com/brujulacripto/creditledger/internal/checkout/domain"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/pricing"
	usagedomain "github.com/brujulacripto/creditledger/internal/usage/domain"
	"github.com/brujulacripto/creditledger/pkg/db/pagination"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"wrapped insufficient", fmt.Errorf("apply: %w", &usagedomain.InsufficientBalanceError{Available: 1, Requested: 2}), http.StatusPaymentRequired, "insufficient_balance"},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, http.StatusServiceUnavailable, "service_unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "service_unavailable"},
		{"processor down", checkoutdomain.ErrProcessorFailed, http.StatusServiceUnavailable, "service_unavailable"},
		{"bad tiers", pricing.ErrInvalidTiers, http.StatusServiceUnavailable, "service_unavailable"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, http.StatusInternalServerError, "internal_error"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"credit not found", paymentdomain.ErrCreditNotFound, http.StatusNotFound, "not_found"},
		{"bad page token", pagination.ErrInvalidPageToken, http.StatusBadRequest, "validation_error"},
		{"bad currency", paymentdomain.ErrInvalidCurrency, http.StatusBadRequest, "validation_error"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.wantStatus || payload.Type != tc.wantType {
				t.Fatalf("expected %d %s, got %d %s", tc.wantStatus, tc.wantType, status, payload.Type)
			}
		})
	}
}

func TestValidationErrorFields(t *testing.T) {
	_, payload := mapError(paymentdomain.ErrInvalidCurrency)
	if len(payload.Errors) != 1 {
		t.Fatalf("expected one validation entry, got %+v", payload.Errors)
	}
	if payload.Errors[0].Field != "currency" || payload.Errors[0].Code != "invalid_currency" {
		t.Fatalf("unexpected validation entry %+v", payload.Errors[0])
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(usagedomain.ErrBalanceContention)
	if errType != "service_unavailable" || code != "balance_contention" {
		t.Fatalf("unexpected classification %s %s", errType, code)
	}

	errType, code = classifyErrorForLog(usagedomain.ErrInvalidSeconds)
	if errType != "validation_error" || code != "invalid_seconds_requested" {
		t.Fatalf("unexpected classification %s %s", errType, code)
	}
}
