package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingConfig controls what uploads cost and what credits sell for.
type PricingConfig struct {
	UploadFees        map[string]int64 `mapstructure:"uploadFees"`
	PricePerCredit    int64            `mapstructure:"pricePerCredit"`
	Currency          string           `mapstructure:"currency"`
	CreditDescription string           `mapstructure:"creditDescription"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		UploadFees: map[string]int64{
			"demand": 1,
			"sales":  1,
		},
		// PHP 50.00 in centavos.
		PricePerCredit:    5000,
		Currency:          "PHP",
		CreditDescription: "Buying credits for Restore",
	}
}

// UploadFee returns the credit cost of one upload of the given kind.
func (c PricingConfig) UploadFee(kind string) int64 {
	if fee, ok := c.UploadFees[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return fee
	}
	return 1
}

type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	return NewPricingHolderFromPaths(
		"/var/lib/restore/config", // Volume-mounted config
		"/etc/restore",
		".",
	)
}

func NewPricingHolderFromPaths(paths ...string) (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("RESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	v.SetDefault("pricing.uploadFees", defaults.UploadFees)
	v.SetDefault("pricing.pricePerCredit", defaults.PricePerCredit)
	v.SetDefault("pricing.currency", defaults.Currency)
	v.SetDefault("pricing.creditDescription", defaults.CreditDescription)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.pricing")
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Warn("pricing reload failed", zap.Error(err))
			return
		}
		updated = updated.withDefaults()
		if err := validatePricingConfig(updated); err != nil {
			log.Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPricingHolder wraps a fixed config, mostly for tests and the CLI.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	if h == nil {
		return DefaultPricingConfig()
	}
	return h.current.Load().(PricingConfig)
}

// withDefaults fills optional fields a partial file may leave out.
func (c PricingConfig) withDefaults() PricingConfig {
	defaults := DefaultPricingConfig()
	if len(c.UploadFees) == 0 {
		c.UploadFees = defaults.UploadFees
	}
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = defaults.Currency
	}
	if strings.TrimSpace(c.CreditDescription) == "" {
		c.CreditDescription = defaults.CreditDescription
	}
	return c
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.PricePerCredit <= 0 {
		return errors.New("pricing.pricePerCredit must be positive")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("pricing.currency cannot be empty")
	}
	for kind, fee := range cfg.UploadFees {
		if fee < 0 {
			return fmt.Errorf("pricing.uploadFees.%s cannot be negative", kind)
		}
	}
	return nil
}
