package main

import (
	"fmt"

	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/brujulacripto/creditledger/internal/pricing"
	"github.com/spf13/cobra"
)

var quoteHours int64

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print the tiered price for a number of hours",
	RunE:  runQuote,
}

func init() {
	quoteCmd.Flags().Int64Var(&quoteHours, "hours", 1, "hours to price")
}

func runQuote(cmd *cobra.Command, args []string) error {
	holder, err := config.NewPricingConfigHolder(config.Load())
	if err != nil {
		return err
	}
	tiers, err := pricing.TiersFromConfig(holder.Get())
	if err != nil {
		return err
	}
	quote, err := pricing.NewQuote(quoteHours, tiers)
	if err != nil {
		return fmt.Errorf("quote %d hours: %w", quoteHours, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d hours = %s %s (%d seconds)\n",
		quote.Hours, quote.Total.String(), quote.Total.Currency, quote.SecondsToCredit)
	return nil
}
