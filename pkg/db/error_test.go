package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsTransientErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "pgx deadlock wrapped", err: fmt.Errorf("increment: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "pq lock not available", err: &pq.Error{Code: "55P03"}, want: true},
		{name: "pgx unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "not found", err: gorm.ErrRecordNotFound, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransientErr(tc.err); got != tc.want {
				t.Fatalf("IsTransientErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	if !IsDuplicateKeyErr(gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm duplicate to match")
	}
	if !IsDuplicateKeyErr(&pq.Error{Code: "23505"}) {
		t.Fatalf("expected pq unique violation to match")
	}
	if !IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: payment_credits.payment_reference")) {
		t.Fatalf("expected sqlite unique violation to match")
	}
	if IsDuplicateKeyErr(errors.New("boom")) {
		t.Fatalf("expected plain error not to match")
	}
}

func TestIsCheckViolation(t *testing.T) {
	if !IsCheckViolation(&pgconn.PgError{Code: "23514"}) {
		t.Fatalf("expected check violation")
	}
	if !IsCheckViolation(errors.New("CHECK constraint failed: balance_seconds >= 0")) {
		t.Fatalf("expected sqlite check violation")
	}
	if IsCheckViolation(nil) {
		t.Fatalf("expected nil not to match")
	}
}
