package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/brujulacripto/creditledger/internal/account/domain"
	accountrepo "github.com/brujulacripto/creditledger/internal/account/repository"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	obsmetrics "github.com/brujulacripto/creditledger/internal/observability/metrics"
	"github.com/brujulacripto/creditledger/internal/usage/domain"
	"github.com/brujulacripto/creditledger/internal/usage/repository"
	"github.com/brujulacripto/creditledger/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxEndAttempts = 5

const (
	outcomeApplied   = "applied"
	outcomeShortfall = "shortfall"
	outcomeNoop      = "noop"
	outcomeRejected  = "rejected"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     repository.Repository
	Accounts accountrepo.Repository
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     repository.Repository
	accounts accountrepo.Repository
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("usage.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		accounts: p.Accounts,
		metrics:  p.Metrics,
	}
}

// ApplyUsageAction advances a metered session by one action. Every balance change
// and its audit event commit together or not at all.
func (s *Service) ApplyUsageAction(ctx context.Context, req domain.ApplyUsageActionRequest) (*domain.ApplyUsageActionResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	var result *domain.ApplyUsageActionResult
	switch req.ActionKind {
	case domain.ActionStart:
		result, err = s.start(ctx, req)
	case domain.ActionIncrement:
		result, err = s.increment(ctx, req)
	case domain.ActionEnd:
		result, err = s.end(ctx, req)
	}

	log := logger.WithSession(logger.WithContext(ctx, s.log), req.SessionID, req.ServiceKind.String()).
		With(zap.String("action_kind", req.ActionKind.String()))
	if err != nil {
		s.metrics.RecordUsageAction(ctx, req.ServiceKind.String(), req.ActionKind.String(), outcomeRejected, 0)
		if errors.Is(err, domain.ErrInsufficientBalance) {
			log.Debug("usage action rejected", zap.Int64("seconds_requested", req.SecondsRequested), zap.Error(err))
		} else {
			log.Warn("usage action failed", zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordUsageAction(ctx, req.ServiceKind.String(), req.ActionKind.String(), outcomeFor(result), result.SecondsApplied)
	log.Debug("usage action applied",
		zap.Int64("seconds_applied", result.SecondsApplied),
		zap.Int64("balance_after", result.BalanceAfter),
		zap.String("state", string(result.State)),
	)
	return result, nil
}

func normalizeRequest(req domain.ApplyUsageActionRequest) (domain.ApplyUsageActionRequest, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return req, domain.ErrInvalidUserID
	}

	serviceKind, err := domain.ParseServiceKind(string(req.ServiceKind))
	if err != nil {
		return req, err
	}
	req.ServiceKind = serviceKind

	actionKind, err := domain.ParseActionKind(string(req.ActionKind))
	if err != nil {
		return req, err
	}
	req.ActionKind = actionKind

	req.SessionID = strings.TrimSpace(req.SessionID)
	if len(req.SessionID) > 128 {
		return req, domain.ErrInvalidSessionID
	}

	switch req.ActionKind {
	case domain.ActionStart:
		req.SecondsRequested = 0
		if req.SessionID == "" {
			req.SessionID = ulid.Make().String()
		}
	case domain.ActionIncrement:
		if req.SecondsRequested <= 0 {
			return req, domain.ErrInvalidSeconds
		}
		if req.SessionID == "" {
			return req, domain.ErrInvalidSessionID
		}
	case domain.ActionEnd:
		if req.SecondsRequested < 0 {
			return req, domain.ErrInvalidSeconds
		}
		if req.SessionID == "" {
			return req, domain.ErrInvalidSessionID
		}
	}
	return req, nil
}

func (s *Service) start(ctx context.Context, req domain.ApplyUsageActionRequest) (*domain.ApplyUsageActionResult, error) {
	var result *domain.ApplyUsageActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.loadAccount(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		session := &domain.UsageSession{
			ID:          s.genID.Generate(),
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			ServiceKind: req.ServiceKind,
			State:       domain.SessionActive,
			StartedAt:   now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := s.repo.InsertSessionIfAbsent(ctx, tx, session)
		if err != nil {
			return err
		}

		if !created {
			existing, err := s.loadSession(ctx, tx, req)
			if err != nil {
				return err
			}
			result = &domain.ApplyUsageActionResult{
				SessionID:                existing.SessionID,
				ServiceKind:              existing.ServiceKind,
				ActionKind:               domain.ActionStart,
				State:                    existing.State,
				BalanceBefore:            account.BalanceSeconds,
				BalanceAfter:             account.BalanceSeconds,
				SecondsConsumedInSession: existing.SecondsConsumed,
			}
			return nil
		}

		if err := s.appendEvent(ctx, tx, req, 0, account.BalanceSeconds, account.BalanceSeconds, now); err != nil {
			return err
		}
		result = &domain.ApplyUsageActionResult{
			SessionID:     session.SessionID,
			ServiceKind:   session.ServiceKind,
			ActionKind:    domain.ActionStart,
			State:         domain.SessionActive,
			BalanceBefore: account.BalanceSeconds,
			BalanceAfter:  account.BalanceSeconds,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) increment(ctx context.Context, req domain.ApplyUsageActionRequest) (*domain.ApplyUsageActionResult, error) {
	var result *domain.ApplyUsageActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadAccount(ctx, tx, req.UserID); err != nil {
			return err
		}
		session, err := s.loadSession(ctx, tx, req)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		covered, err := s.accounts.DecrementIfCovered(ctx, tx, req.UserID, req.SecondsRequested, now)
		if err != nil {
			return err
		}
		if !covered {
			current, err := s.loadAccount(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			return &domain.InsufficientBalanceError{
				Available: current.BalanceSeconds,
				Requested: req.SecondsRequested,
			}
		}

		stillActive, err := s.repo.AddConsumed(ctx, tx, session.ID, req.SecondsRequested, now)
		if err != nil {
			return err
		}
		if !stillActive {
			return domain.ErrSessionNotActive
		}

		after, err := s.loadAccount(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		balanceAfter := after.BalanceSeconds
		balanceBefore := balanceAfter + req.SecondsRequested

		if err := s.appendEvent(ctx, tx, req, req.SecondsRequested, balanceBefore, balanceAfter, now); err != nil {
			return err
		}

		result = &domain.ApplyUsageActionResult{
			SessionID:                session.SessionID,
			ServiceKind:              session.ServiceKind,
			ActionKind:               domain.ActionIncrement,
			State:                    domain.SessionActive,
			SecondsRequested:         req.SecondsRequested,
			SecondsApplied:           req.SecondsRequested,
			BalanceBefore:            balanceBefore,
			BalanceAfter:             balanceAfter,
			SecondsConsumedInSession: session.SecondsConsumed + req.SecondsRequested,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// end charges min(requested, balance) and closes the session.
func (s *Service) end(ctx context.Context, req domain.ApplyUsageActionRequest) (*domain.ApplyUsageActionResult, error) {
	var result *domain.ApplyUsageActionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadAccount(ctx, tx, req.UserID); err != nil {
			return err
		}
		session, err := s.loadSession(ctx, tx, req)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		var (
			observed int64
			toCharge int64
			applied  bool
		)
		for attempt := 0; attempt < maxEndAttempts; attempt++ {
			account, err := s.loadAccount(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			observed = account.BalanceSeconds
			toCharge = min(req.SecondsRequested, observed)

			applied, err = s.accounts.CompareAndSet(ctx, tx, req.UserID, observed, observed-toCharge, now)
			if err != nil {
				return err
			}
			if applied {
				break
			}
		}
		if !applied {
			return domain.ErrBalanceContention
		}

		state := domain.SessionCompleted
		if toCharge < req.SecondsRequested {
			state = domain.SessionCompletedWithShortfall
		}
		closed, err := s.repo.CloseSession(ctx, tx, session.ID, state, toCharge, now)
		if err != nil {
			return err
		}
		if !closed {
			return domain.ErrSessionNotActive
		}

		if err := s.appendEvent(ctx, tx, req, toCharge, observed, observed-toCharge, now); err != nil {
			return err
		}

		result = &domain.ApplyUsageActionResult{
			SessionID:                session.SessionID,
			ServiceKind:              session.ServiceKind,
			ActionKind:               domain.ActionEnd,
			State:                    state,
			SecondsRequested:         req.SecondsRequested,
			SecondsApplied:           toCharge,
			BalanceBefore:            observed,
			BalanceAfter:             observed - toCharge,
			SecondsConsumedInSession: session.SecondsConsumed + toCharge,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSessionID
	}

	session, err := s.repo.FindSession(ctx, s.db, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.Session{
		SessionID:       session.SessionID,
		ServiceKind:     session.ServiceKind,
		State:           session.State,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		SecondsConsumed: session.SecondsConsumed,
	}, nil
}

func (s *Service) ListEvents(ctx context.Context, req domain.ListEventsRequest) (domain.ListEventsResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ListEventsResponse{}, domain.ErrInvalidUserID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()

	filter := repository.EventFilter{
		UserID:    userID,
		SessionID: strings.TrimSpace(req.SessionID),
		Limit:     limit + 1,
	}
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}
	if cursor != nil {
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListEventsResponse{}, pagination.ErrInvalidPageToken
		}
		filter.BeforeID = beforeID
	}

	rows, err := s.repo.ListEvents(ctx, s.db, filter)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, limit, func(e *domain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.Event{
			ID:               row.ID.String(),
			SessionID:        row.SessionID,
			ServiceKind:      row.ServiceKind,
			ActionKind:       row.ActionKind,
			SecondsRequested: row.SecondsRequested,
			SecondsApplied:   row.SecondsApplied,
			BalanceBefore:    row.BalanceBefore,
			BalanceAfter:     row.BalanceAfter,
			OccurredAt:       row.OccurredAt,
		})
	}

	return domain.ListEventsResponse{PageInfo: *pageInfo, Events: events}, nil
}

func (s *Service) loadAccount(ctx context.Context, tx *gorm.DB, userID string) (*accountdomain.AccountBalance, error) {
	account, err := s.accounts.Find(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

// loadSession resolves the session named by req and checks it can take another action.
func (s *Service) loadSession(ctx context.Context, tx *gorm.DB, req domain.ApplyUsageActionRequest) (*domain.UsageSession, error) {
	session, err := s.repo.FindSession(ctx, tx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	if session.ServiceKind != req.ServiceKind {
		return nil, domain.ErrSessionServiceMismatch
	}
	if session.State.Closed() {
		return nil, domain.ErrSessionNotActive
	}
	return session, nil
}

func (s *Service) appendEvent(ctx context.Context, tx *gorm.DB, req domain.ApplyUsageActionRequest, applied, before, after int64, now time.Time) error {
	return s.repo.AppendEvent(ctx, tx, &domain.UsageEvent{
		ID:               s.genID.Generate(),
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		ServiceKind:      req.ServiceKind,
		ActionKind:       req.ActionKind,
		SecondsRequested: req.SecondsRequested,
		SecondsApplied:   applied,
		BalanceBefore:    before,
		BalanceAfter:     after,
		OccurredAt:       now,
	})
}

func outcomeFor(result *domain.ApplyUsageActionResult) string {
	switch {
	case result.State == domain.SessionCompletedWithShortfall:
		return outcomeShortfall
	case result.ActionKind == domain.ActionIncrement && result.SecondsApplied == 0:
		return outcomeNoop
	default:
		return outcomeApplied
	}
}
