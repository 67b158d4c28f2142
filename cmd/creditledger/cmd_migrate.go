package main

import (
	"context"
	"time"

	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/migration"
	"github.com/brujulacripto/creditledger/internal/observability"
	"github.com/brujulacripto/creditledger/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}
