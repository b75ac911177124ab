// Package config reads the point of sale settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ellemouton/lnurlw"
	"github.com/ellemouton/lnurlw/payout"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PullPaymentID   string              `envconfig:"PULL_PAYMENT_ID"`
	BTCPayServerURL string              `envconfig:"BTCPAY_SERVER_URL"`
	BTCPayAPIKey    string              `envconfig:"BTCPAY_API_KEY"`
	PayoutAmount    lnurlw.PayoutAmount `envconfig:"PAYOUT_AMOUNT" default:"0.01"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile     string `envconfig:"LOG_FILE"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads .env from the working directory, if there is one, and then the
// process environment. Variables already set win over the file.
func Load() (*Config, error) {
	err := godotenv.Load(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not read .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return cfg, nil
}

func (c *Config) PayoutConfig() payout.Config {
	return payout.Config{
		PullPaymentID: c.PullPaymentID,
		ServerDomain:  c.BTCPayServerURL,
		APIKey:        c.BTCPayAPIKey,
	}
}

func (c *Config) Payout() lnurlw.PayoutAmount {
	return c.PayoutAmount
}

// ValidatePayout reports whether the payout flow can be used.
func (c *Config) ValidatePayout() error {
	if err := c.PayoutConfig().Validate(); err != nil {
		return err
	}
	if !c.PayoutAmount.IsPositive() {
		return fmt.Errorf("%w: payout amount must be positive",
			payout.ErrNotConfigured)
	}

	return nil
}
