package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/brujulacripto/creditledger/internal/pricing"
)

type quoteResponse struct {
	Hours           int64  `json:"hours"`
	SecondsToCredit int64  `json:"seconds_to_credit"`
	Amount          int64  `json:"amount"`
	AmountText      string `json:"amount_text"`
	Currency        string `json:"currency"`
}

// GetPricingQuote prices ?hours=N with the live tier table.
func (s *Server) GetPricingQuote(c *gin.Context) {
	hours, err := parseOptionalInt64(c.Query("hours"))
	if err != nil || hours == nil {
		AbortWithError(c, newValidationError("hours", "invalid_hours", "hours must be a positive integer"))
		return
	}

	tiers, err := pricing.TiersFromConfig(s.pricing.Get())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	quote, err := pricing.NewQuote(*hours, tiers)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quoteResponse{
		Hours:           quote.Hours,
		SecondsToCredit: quote.SecondsToCredit,
		Amount:          quote.Total.Amount,
		AmountText:      quote.Total.String(),
		Currency:        quote.Total.Currency,
	}})
}

func isPricingValidationError(err error) bool {
	return errors.Is(err, pricing.ErrInvalidHours) || errors.Is(err, pricing.ErrInvalidAmount)
}
