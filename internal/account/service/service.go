package service

import (
	"context"
	"strings"

	"github.com/brujulacripto/creditledger/internal/account/domain"
	"github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	Repo   repository.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	repo           repository.Repository
	starterBalance int64
}

func New(p Params) domain.Service {
	starter := p.Config.StarterBalanceSeconds
	if starter < 0 {
		starter = 0
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("account.service"),
		clock:          p.Clock,
		repo:           p.Repo,
		starterBalance: starter,
	}
}

func (s *Service) Open(ctx context.Context, userID string) (*domain.Balance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	now := s.clock.Now()
	created, err := s.repo.InsertIfAbsent(ctx, s.db, userID, s.starterBalance, now)
	if err != nil {
		return nil, err
	}
	if created {
		logger.WithContext(ctx, s.log).Info("account opened",
			zap.Int64("starter_balance_seconds", s.starterBalance),
		)
	}

	return s.GetBalance(ctx, userID)
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	row, err := s.repo.Find(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrAccountNotFound
	}
	return &domain.Balance{
		UserID:         row.UserID,
		BalanceSeconds: row.BalanceSeconds,
		LastActivityAt: row.LastActivityAt,
	}, nil
}

func (s *Service) Close(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUserID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return domain.ErrAccountNotFound
		}
		logger.WithContext(ctx, s.log).Info("account closed")
		return nil
	})
}
