// Package pricing computes the tiered price of prepaid usage hours.
package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brujulacripto/creditledger/internal/config"
)

const SecondsPerHour int64 = 3600

var (
	ErrInvalidHours  = errors.New("invalid_hours")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidTiers  = errors.New("invalid_pricing_tiers")
)

// Tiers holds per-hour prices in minor units. Hours up to FirstTierHours are
// charged at FirstTierPrice, the rest at SecondTierPrice.
type Tiers struct {
	FirstTierHours  int64
	FirstTierPrice  int64
	SecondTierPrice int64
	MaxHours        int64
	Currency        string
}

// DefaultTiers mirrors config.DefaultPricingConfig.
func DefaultTiers() Tiers {
	return Tiers{
		FirstTierHours:  2,
		FirstTierPrice:  499,
		SecondTierPrice: 399,
		MaxHours:        100,
		Currency:        "usd",
	}
}

// Money is an amount in minor units of Currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// String renders the amount as a two-decimal string, e.g. 2195 -> "21.95".
func (m Money) String() string {
	return FormatMinor(m.Amount)
}

func FormatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// Quote is a priced purchase of hours.
type Quote struct {
	Hours           int64 `json:"hours"`
	SecondsToCredit int64 `json:"seconds_to_credit"`
	Total           Money `json:"total"`
}

// Price returns the total for hours under tiers.
func Price(hours int64, tiers Tiers) (Money, error) {
	if err := tiers.Validate(); err != nil {
		return Money{}, err
	}
	if hours <= 0 || (tiers.MaxHours > 0 && hours > tiers.MaxHours) {
		return Money{}, ErrInvalidHours
	}

	var total int64
	if hours <= tiers.FirstTierHours {
		total = hours * tiers.FirstTierPrice
	} else {
		total = tiers.FirstTierHours*tiers.FirstTierPrice + (hours-tiers.FirstTierHours)*tiers.SecondTierPrice
	}
	return Money{Amount: total, Currency: tiers.Currency}, nil
}

// NewQuote prices hours and derives the seconds a purchase credits.
func NewQuote(hours int64, tiers Tiers) (*Quote, error) {
	total, err := Price(hours, tiers)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Hours:           hours,
		SecondsToCredit: hours * SecondsPerHour,
		Total:           total,
	}, nil
}

func (t Tiers) Validate() error {
	if t.FirstTierHours < 0 || t.FirstTierPrice < 0 || t.SecondTierPrice < 0 || t.MaxHours < 0 {
		return ErrInvalidTiers
	}
	if strings.TrimSpace(t.Currency) == "" {
		return ErrInvalidTiers
	}
	return nil
}

// ParseMinor converts a decimal string with at most two fraction digits to
// minor units. "4.99" -> 499, "4" -> 400, "4.5" -> 450.
func ParseMinor(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return 0, ErrInvalidAmount
	}

	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > 2) {
		return 0, ErrInvalidAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return major*100 + minor, nil
}

// TiersFromConfig converts the reloadable pricing document into Tiers.
func TiersFromConfig(cfg config.PricingConfig) (Tiers, error) {
	first, err := ParseMinor(cfg.FirstTierPrice)
	if err != nil {
		return Tiers{}, fmt.Errorf("first tier price: %w", err)
	}
	second, err := ParseMinor(cfg.SecondTierPrice)
	if err != nil {
		return Tiers{}, fmt.Errorf("second tier price: %w", err)
	}
	tiers := Tiers{
		FirstTierHours:  cfg.FirstTierHours,
		FirstTierPrice:  first,
		SecondTierPrice: second,
		MaxHours:        cfg.MaxHours,
		Currency:        strings.ToLower(strings.TrimSpace(cfg.Currency)),
	}
	if err := tiers.Validate(); err != nil {
		return Tiers{}, err
	}
	return tiers, nil
}
