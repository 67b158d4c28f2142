package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is a thin generic store for append-mostly ledger rows. Callers
// inside a transaction build it over the tx handle.
type Repository[T any] interface {
	FindOne(ctx context.Context, query *T) (*T, error)
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	Create(ctx context.Context, resource *T) error
}

// QueryOption customises a Find statement.
type QueryOption func(*gorm.DB) *gorm.DB

func OrderBy(expr string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(expr) }
}

func Limit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Limit(n) }
}

func Where(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}
