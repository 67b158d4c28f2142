package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STARTER_BALANCE_SECONDS", "")
	t.Setenv("SUPPORTED_CURRENCIES", "")
	t.Setenv("STRIPE_WEBHOOK_TOLERANCE_SECONDS", "")

	cfg := Load()

	assert.Equal(t, int64(300), cfg.StarterBalanceSeconds)
	assert.Equal(t, []string{"usd", "eur"}, cfg.SupportedCurrencies)
	assert.Equal(t, 300*time.Second, cfg.Stripe.WebhookTolerance)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STARTER_BALANCE_SECONDS", "900")
	t.Setenv("SUPPORTED_CURRENCIES", "USD, mxn ,")
	t.Setenv("RATE_LIMIT_ENABLED", "yes")
	t.Setenv("RATE_LIMIT_USAGE_ACTION_USER_RATE", "0.5")
	t.Setenv("ENVIRONMENT", "Production")

	cfg := Load()

	assert.Equal(t, int64(900), cfg.StarterBalanceSeconds)
	assert.Equal(t, []string{"usd", "mxn"}, cfg.SupportedCurrencies)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 0.5, cfg.RateLimit.UsageActionUserRate)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.IsSupportedCurrency(" MXN "))
	assert.False(t, cfg.IsSupportedCurrency("eur"))
	assert.False(t, cfg.IsSupportedCurrency(""))
}

func TestLoadObservability(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")

	cfg := Load()

	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "http", cfg.Observability.OtelProtocol)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("STARTER_BALANCE_SECONDS", "lots")
	t.Setenv("RATE_LIMIT_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, int64(300), cfg.StarterBalanceSeconds)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestPricingConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	doc := []byte(`pricing:
  currency: eur
  firstTierHours: 3
  firstTierPrice: "5.49"
  secondTierPrice: "4.49"
  maxHours: 24
  productDescription: Chatbot time
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	holder, err := NewPricingConfigHolder(Config{PricingConfigPath: path})
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, "eur", got.Currency)
	assert.Equal(t, int64(3), got.FirstTierHours)
	assert.Equal(t, "5.49", got.FirstTierPrice)
	assert.Equal(t, "4.49", got.SecondTierPrice)
	assert.Equal(t, int64(24), got.MaxHours)
	assert.Equal(t, "Chatbot time", got.ProductDescription)
}

func TestPricingConfigHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	doc := []byte(`pricing:
  firstTierHours: 0
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	_, err := NewPricingConfigHolder(Config{PricingConfigPath: path})
	assert.Error(t, err)
}

func TestValidatePricingConfig(t *testing.T) {
	assert.NoError(t, ValidatePricingConfig(DefaultPricingConfig()))

	cfg := DefaultPricingConfig()
	cfg.MaxHours = 1
	assert.Error(t, ValidatePricingConfig(cfg))

	cfg = DefaultPricingConfig()
	cfg.Currency = " "
	assert.Error(t, ValidatePricingConfig(cfg))
}
