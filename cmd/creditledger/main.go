package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var snowflakeNode int64

var rootCmd = &cobra.Command{
	Use:           "creditledger",
	Short:         "Prepaid time-credit ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&snowflakeNode, "node", 1, "snowflake node id for generated row ids (0-1023)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(quoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
