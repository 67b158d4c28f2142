package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingConfig is the hot-reloadable pricing document. Prices are decimal strings
// in the major unit of Currency, e.g. "4.99".
type PricingConfig struct {
	Currency           string `mapstructure:"currency"`
	FirstTierHours     int64  `mapstructure:"firstTierHours"`
	FirstTierPrice     string `mapstructure:"firstTierPrice"`
	SecondTierPrice    string `mapstructure:"secondTierPrice"`
	MaxHours           int64  `mapstructure:"maxHours"`
	ProductDescription string `mapstructure:"productDescription"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Currency:           "usd",
		FirstTierHours:     2,
		FirstTierPrice:     "4.99",
		SecondTierPrice:    "3.99",
		MaxHours:           100,
		ProductDescription: "Brujula Cripto usage time",
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingConfigHolder returns a holder that never reloads.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPricingConfigHolder(cfg Config) (*PricingConfigHolder, error) {
	v := viper.New()

	if cfg.PricingConfigPath != "" {
		v.SetConfigFile(cfg.PricingConfigPath)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creditledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CREDITLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.currency", defaults.Currency)
	v.SetDefault("pricing.firstTierHours", defaults.FirstTierHours)
	v.SetDefault("pricing.firstTierPrice", defaults.FirstTierPrice)
	v.SetDefault("pricing.secondTierPrice", defaults.SecondTierPrice)
	v.SetDefault("pricing.maxHours", defaults.MaxHours)
	v.SetDefault("pricing.productDescription", defaults.ProductDescription)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var pricing PricingConfig
	if err := v.UnmarshalKey("pricing", &pricing); err != nil {
		return nil, err
	}
	if err := ValidatePricingConfig(pricing); err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfigHolder(pricing)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			zap.L().Warn("pricing config reload failed", zap.Error(err))
			return
		}
		if err := ValidatePricingConfig(updated); err != nil {
			zap.L().Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("pricing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func ValidatePricingConfig(cfg PricingConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	if cfg.FirstTierHours <= 0 {
		return errors.New("pricing.firstTierHours must be positive")
	}
	if strings.TrimSpace(cfg.FirstTierPrice) == "" || strings.TrimSpace(cfg.SecondTierPrice) == "" {
		return errors.New("pricing tier prices cannot be empty")
	}
	if cfg.MaxHours < cfg.FirstTierHours {
		return errors.New("pricing.maxHours must cover the first tier")
	}
	return nil
}
