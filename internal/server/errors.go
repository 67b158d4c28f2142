package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	"github.com/brujulacripto/creditledger/internal/authorization"
	checkoutdomain "github.com/brujulacripto/creditledger/internal/checkout/domain"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/payment/receipt"
	"github.com/brujulacripto/creditledger/internal/pricing"
	usagedomain "github.com/brujulacripto/creditledger/internal/usage/domain"
	"github.com/brujulacripto/creditledger/pkg/db"
	"github.com/brujulacripto/creditledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Available *int64            `json:"available,omitempty"`
	Requested *int64            `json:"requested,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var insufficient *usagedomain.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		available, requested := insufficient.Available, insufficient.Requested
		return http.StatusPaymentRequired, errorPayload{
			Type:      "insufficient_balance",
			Message:   "insufficient balance",
			Available: &available,
			Requested: &requested,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, usagedomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient balance",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, usagedomain.ErrSessionNotActive):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a type and a stable code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		code = errorCode(err)
	}
	return payload.Type, code
}

func errorCode(err error) string {
	for _, known := range []error{
		usagedomain.ErrBalanceContention,
		checkoutdomain.ErrProcessorNotReady,
		checkoutdomain.ErrProcessorFailed,
		checkoutdomain.ErrInvalidProcessorRes,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if db.IsTransientErr(err) {
		return "transient_db_error"
	}
	return "internal_error"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isAccountValidationError(err),
		isUsageValidationError(err),
		isPaymentValidationError(err),
		isCheckoutValidationError(err),
		isPricingValidationError(err):
		return true
	default:
		return false
	}
}

func isAccountValidationError(err error) bool {
	return errors.Is(err, accountdomain.ErrInvalidUserID)
}

func isUsageValidationError(err error) bool {
	switch {
	case errors.Is(err, usagedomain.ErrInvalidUserID),
		errors.Is(err, usagedomain.ErrInvalidServiceKind),
		errors.Is(err, usagedomain.ErrInvalidActionKind),
		errors.Is(err, usagedomain.ErrInvalidSeconds),
		errors.Is(err, usagedomain.ErrInvalidSessionID),
		errors.Is(err, usagedomain.ErrSessionServiceMismatch):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidReference),
		errors.Is(err, paymentdomain.ErrInvalidUserID),
		errors.Is(err, paymentdomain.ErrInvalidSeconds),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, paymentdomain.ErrInvalidMetadata),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, receipt.ErrInvalidReceipt):
		return true
	default:
		return false
	}
}

func isCheckoutValidationError(err error) bool {
	return errors.Is(err, checkoutdomain.ErrInvalidUserID)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, usagedomain.ErrSessionNotFound),
		errors.Is(err, paymentdomain.ErrCreditNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, usagedomain.ErrBalanceContention),
		errors.Is(err, checkoutdomain.ErrProcessorNotReady),
		errors.Is(err, checkoutdomain.ErrProcessorFailed),
		errors.Is(err, checkoutdomain.ErrInvalidProcessorRes),
		errors.Is(err, paymentdomain.ErrInvalidConfig),
		errors.Is(err, pricing.ErrInvalidTiers):
		return true
	default:
		return db.IsTransientErr(err)
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "session_service_mismatch":
		return "session belongs to another service"
	default:
		return "invalid value"
	}
}
