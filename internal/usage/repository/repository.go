package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/brujulacripto/creditledger/internal/usage/domain"
	"github.com/brujulacripto/creditledger/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	InsertSessionIfAbsent(ctx context.Context, db *gorm.DB, session *domain.UsageSession) (bool, error)
	FindSession(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.UsageSession, error)
	// AddConsumed charges an active session; it reports false when the session has closed.
	AddConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID, seconds int64, now time.Time) (bool, error)
	CloseSession(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.SessionState, seconds int64, now time.Time) (bool, error)

	AppendEvent(ctx context.Context, db *gorm.DB, event *domain.UsageEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]*domain.UsageEvent, error)
}

type EventFilter struct {
	UserID    string
	SessionID string
	BeforeID  snowflake.ID
	Limit     int
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) InsertSessionIfAbsent(ctx context.Context, db *gorm.DB, session *domain.UsageSession) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).
		Create(session)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, userID, sessionID string) (*domain.UsageSession, error) {
	return repository.ProvideStore[domain.UsageSession](db).FindOne(ctx, &domain.UsageSession{
		UserID:    userID,
		SessionID: sessionID,
	})
}

func (r *repo) AddConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID, seconds int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_sessions
		 SET seconds_consumed = seconds_consumed + ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		seconds,
		now,
		id,
		domain.SessionActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CloseSession(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.SessionState, seconds int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_sessions
		 SET state = ?, ended_at = ?, seconds_consumed = seconds_consumed + ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		state,
		now,
		seconds,
		now,
		id,
		domain.SessionActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) AppendEvent(ctx context.Context, db *gorm.DB, event *domain.UsageEvent) error {
	return repository.ProvideStore[domain.UsageEvent](db).Create(ctx, event)
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]*domain.UsageEvent, error) {
	opts := []repository.QueryOption{
		repository.OrderBy("id desc"),
		repository.Limit(filter.Limit),
	}
	if filter.BeforeID != 0 {
		opts = append(opts, repository.Where("id < ?", filter.BeforeID))
	}
	return repository.ProvideStore[domain.UsageEvent](db).Find(ctx, &domain.UsageEvent{
		UserID:    filter.UserID,
		SessionID: filter.SessionID,
	}, opts...)
}
