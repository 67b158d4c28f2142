package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	obsmetrics "github.com/brujulacripto/creditledger/internal/observability/metrics"
	"github.com/brujulacripto/creditledger/internal/payment/adapters"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
	configs    map[string]map[string]any
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		configs:    ProviderConfigs(p.Cfg),
		obsMetrics: p.ObsMetrics,
	}
}

// ProviderConfigs maps each provider to the adapter settings taken from config.
func ProviderConfigs(cfg config.Config) map[string]map[string]any {
	return map[string]map[string]any{
		"stripe": {
			"webhook_secret":    cfg.Stripe.WebhookSecret,
			"tolerance_seconds": int64(cfg.Stripe.WebhookTolerance.Seconds()),
		},
	}
}

// IngestWebhook verifies and credits one provider delivery. Redeliveries of a
// processed event return ErrEventAlreadyProcessed.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, err := s.adapters.Build(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   s.configs[provider],
		Now:      s.clock.Now,
	})
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		log.Warn("payment webhook signature rejected", zap.Error(err))
		return err
	}

	confirmation, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			log.Debug("payment webhook ignored")
			return err
		}
		log.Warn("payment webhook rejected", zap.Error(err))
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: confirmation.ProviderEventID,
		EventType:       confirmation.EventType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, confirmation.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if inserted {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, confirmation.EventType)
	}

	result, err := s.paymentSvc.ReconcilePayment(ctx, paymentdomain.ReconcilePaymentRequest{
		PaymentReference: confirmation.PaymentReference,
		UserID:           confirmation.UserID,
		SecondsToCredit:  confirmation.SecondsToCredit,
		AmountPaid:       confirmation.AmountPaid,
		Currency:         confirmation.Currency,
		Provider:         provider,
		Metadata:         confirmation.Metadata,
	})
	if err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	log.Info("payment webhook processed",
		zap.String("provider_event_id", confirmation.ProviderEventID),
		zap.String("event_type", confirmation.EventType),
		zap.Bool("replayed", result.Replayed),
	)
	return nil
}
