package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	accountrepo "github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	obsmetrics "github.com/brujulacripto/creditledger/internal/observability/metrics"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxReferenceLength = 255

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       paymentdomain.Repository
	Accounts   accountrepo.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       paymentdomain.Repository
	accounts   accountrepo.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		repo:       p.Repo,
		accounts:   p.Accounts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ReconcilePayment(ctx context.Context, req paymentdomain.ReconcilePaymentRequest) (*paymentdomain.ReconcilePaymentResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	var result *paymentdomain.ReconcilePaymentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		credit := &paymentdomain.PaymentCredit{
			ID:               s.genID.Generate(),
			PaymentReference: req.PaymentReference,
			UserID:           req.UserID,
			SecondsCredited:  req.SecondsToCredit,
			AmountPaid:       req.AmountPaid,
			Currency:         req.Currency,
			Status:           paymentdomain.CreditStatusCompleted,
			Provider:         req.Provider,
			Metadata:         datatypes.JSONMap(req.Metadata),
			RecordedAt:       now,
		}

		inserted, err := s.repo.InsertCreditIfAbsent(ctx, tx, credit)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindCredit(ctx, tx, req.PaymentReference)
			if err != nil {
				return err
			}
			if existing == nil {
				return paymentdomain.ErrCreditNotFound
			}
			if existing.UserID != req.UserID {
				logger.WithContext(ctx, s.log).Warn("payment replay names a different user",
					zap.String("payment_reference", req.PaymentReference),
					zap.String("recorded_user_id", existing.UserID),
				)
			}
			result = resultFromCredit(existing, true)
			return nil
		}

		found, err := s.accounts.Increment(ctx, tx, req.UserID, req.SecondsToCredit, now)
		if err != nil {
			return err
		}
		if !found {
			return accountdomain.ErrAccountNotFound
		}

		account, err := s.accounts.Find(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrAccountNotFound
		}
		if err := s.repo.SetBalanceAfter(ctx, tx, credit.ID, account.BalanceSeconds); err != nil {
			return err
		}
		credit.BalanceAfter = account.BalanceSeconds

		result = resultFromCredit(credit, false)
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("payment reconciliation failed",
			zap.String("payment_reference", req.PaymentReference),
			zap.String("provider", req.Provider),
			zap.Error(err),
		)
		return nil, err
	}

	outcome := "credited"
	credited := result.SecondsCredited
	if result.Replayed {
		outcome = "replayed"
		credited = 0
	}
	s.obsMetrics.RecordPaymentCredit(ctx, req.Provider, outcome, credited)
	logger.WithUser(logger.WithContext(ctx, s.log), req.UserID).Info("payment reconciled",
		zap.String("payment_reference", req.PaymentReference),
		zap.String("provider", req.Provider),
		zap.Bool("replayed", result.Replayed),
		zap.Int64("seconds_credited", result.SecondsCredited),
		zap.Int64("balance_after", result.BalanceAfter),
	)

	return result, nil
}

func (s *Service) GetCredit(ctx context.Context, userID, paymentReference string) (*paymentdomain.PaymentCredit, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUserID
	}
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, paymentdomain.ErrInvalidReference
	}

	credit, err := s.repo.FindCredit(ctx, s.db, paymentReference)
	if err != nil {
		return nil, err
	}
	if credit == nil || credit.UserID != userID {
		return nil, paymentdomain.ErrCreditNotFound
	}
	return credit, nil
}

func (s *Service) validate(req *paymentdomain.ReconcilePaymentRequest) error {
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if req.PaymentReference == "" || len(req.PaymentReference) > maxReferenceLength {
		return paymentdomain.ErrInvalidReference
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return paymentdomain.ErrInvalidUserID
	}
	if req.SecondsToCredit <= 0 {
		return paymentdomain.ErrInvalidSeconds
	}
	if req.AmountPaid < 0 {
		return paymentdomain.ErrInvalidAmount
	}
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if !s.cfg.IsSupportedCurrency(req.Currency) {
		return paymentdomain.ErrInvalidCurrency
	}
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.Provider == "" {
		req.Provider = paymentdomain.ProviderManual
	}
	return nil
}

func resultFromCredit(credit *paymentdomain.PaymentCredit, replayed bool) *paymentdomain.ReconcilePaymentResult {
	return &paymentdomain.ReconcilePaymentResult{
		PaymentReference: credit.PaymentReference,
		UserID:           credit.UserID,
		SecondsCredited:  credit.SecondsCredited,
		AmountPaid:       credit.AmountPaid,
		Currency:         credit.Currency,
		BalanceAfter:     credit.BalanceAfter,
		Replayed:         replayed,
		RecordedAt:       credit.RecordedAt,
	}
}
