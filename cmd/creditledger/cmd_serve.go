package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/brujulacripto/creditledger/internal/clock"
	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/migration"
	"github.com/brujulacripto/creditledger/internal/observability"
	"github.com/brujulacripto/creditledger/internal/server"
	"github.com/brujulacripto/creditledger/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the ledger HTTP API.

The schema is migrated on start, then the server listens on HTTP_ADDR
until it receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(snowflakeNode)
}
