package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore binds a store to db, which may be a transaction.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

// FindOne returns nil, nil when no row matches.
func (s *store[T]) FindOne(ctx context.Context, query *T) (*T, error) {
	var row T
	err := s.db.WithContext(ctx).Where(query).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error) {
	stmt := s.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		stmt = opt(stmt)
	}
	var rows []*T
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}
