package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/brujulacripto/creditledger/internal/checkout/domain"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	"github.com/brujulacripto/creditledger/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Pricing   *config.PricingConfigHolder
	Processor domain.Processor
}

type Service struct {
	log       *zap.Logger
	pricing   *config.PricingConfigHolder
	processor domain.Processor
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("checkout.service"),
		pricing:   p.Pricing,
		processor: p.Processor,
	}
}

// CreateCheckoutSession prices the requested hours and opens a hosted checkout. The
// metadata written here is read back verbatim when the payment webhook arrives.
func (s *Service) CreateCheckoutSession(ctx context.Context, req domain.CreateCheckoutRequest) (*domain.CheckoutSession, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	pricingCfg := s.pricing.Get()
	tiers, err := pricing.TiersFromConfig(pricingCfg)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.NewQuote(req.Hours, tiers)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		domain.MetadataUserID:          userID,
		domain.MetadataHours:           strconv.FormatInt(quote.Hours, 10),
		domain.MetadataSecondsToCredit: strconv.FormatInt(quote.SecondsToCredit, 10),
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	session, err := s.processor.CreateSession(ctx, domain.ProcessorRequest{
		CustomerRef:        userID,
		Amount:             quote.Total.Amount,
		Currency:           quote.Total.Currency,
		ProductDescription: pricingCfg.ProductDescription,
		Metadata:           metadata,
		IdempotencyKey:     idempotencyKey,
	})
	if err != nil {
		logger.WithUser(logger.WithContext(ctx, s.log), userID).Warn("checkout session failed",
			zap.Int64("hours", quote.Hours),
			zap.Error(err),
		)
		return nil, err
	}

	logger.WithUser(logger.WithContext(ctx, s.log), userID).Info("checkout session created",
		zap.String("checkout_session_id", session.ID),
		zap.Int64("hours", quote.Hours),
		zap.Int64("amount", quote.Total.Amount),
	)

	return &domain.CheckoutSession{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Hours:       quote.Hours,
		Amount:      quote.Total.Amount,
		AmountText:  quote.Total.String(),
		Currency:    quote.Total.Currency,
		Metadata:    metadata,
	}, nil
}
