package config

import (
	"errors"
	"os"
	"strings"
)

// Config holds the orchestrator configuration. All external collaborators
// (account service, ledger service, rate provider) are reached through the
// endpoints configured here; nothing is hardwired.
type Config struct {
	Environment       string
	AccountServiceURL string
	LedgerServiceURL  string
	RateProviderURL   string
	RateProviderKey   string
	ReferenceCurrency string
	JournalPath       string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       os.Getenv("APP_ENV"),
		AccountServiceURL: os.Getenv("ACCOUNT_SERVICE_URL"),
		LedgerServiceURL:  os.Getenv("LEDGER_SERVICE_URL"),
		RateProviderURL:   os.Getenv("RATE_PROVIDER_URL"),
		RateProviderKey:   os.Getenv("RATE_PROVIDER_API_KEY"),
		ReferenceCurrency: os.Getenv("REFERENCE_CURRENCY"),
		JournalPath:       os.Getenv("JOURNAL_PATH"),
	}

	if cfg.ReferenceCurrency == "" {
		cfg.ReferenceCurrency = "USD"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "bankops-journal.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.AccountServiceURL == "" {
		missing = append(missing, "ACCOUNT_SERVICE_URL")
	}
	if c.LedgerServiceURL == "" {
		missing = append(missing, "LEDGER_SERVICE_URL")
	}
	if c.RateProviderURL == "" {
		missing = append(missing, "RATE_PROVIDER_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if len(c.ReferenceCurrency) != 3 {
		return errors.New("REFERENCE_CURRENCY must be a three-letter code")
	}

	// The provider key may stay empty outside production, where the
	// orchestrator is usually pointed at a stub provider.
	if (c.Environment == "production" || c.Environment == "staging") && c.RateProviderKey == "" {
		return errors.New("missing required environment variable for " + c.Environment + ": RATE_PROVIDER_API_KEY")
	}

	return nil
}
