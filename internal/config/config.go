// Package config loads the daemon configuration from the environment with
// precedence ENV > defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	"github.com/arrowpuzzle/rewardflow/internal/rewarded"
)

// Config is the full daemon configuration.
type Config struct {
	Listen   string
	LogLevel string

	LedgerBaseURL string
	APIToken      string

	ProviderBaseURL string
	ProviderTimeout time.Duration

	PollInterval      time.Duration
	PollTimeout       time.Duration
	ReconcileInterval time.Duration
	ToastTTL          time.Duration

	AdsEnabled bool
	BlockIDs   map[ledger.Placement]string
}

// FromEnv builds the configuration from REWARDFLOW_* environment variables.
func FromEnv() Config {
	return Config{
		Listen:   ParseString("REWARDFLOW_LISTEN", "127.0.0.1:8790"),
		LogLevel: ParseString("REWARDFLOW_LOG_LEVEL", "info"),

		LedgerBaseURL: ParseString("REWARDFLOW_LEDGER_URL", ""),
		APIToken:      ParseString("REWARDFLOW_API_TOKEN", ""),

		ProviderBaseURL: ParseString("REWARDFLOW_PROVIDER_URL", ""),
		ProviderTimeout: ParseDuration("REWARDFLOW_PROVIDER_TIMEOUT", 90*time.Second),

		PollInterval:      ParseDuration("REWARDFLOW_POLL_INTERVAL", 2*time.Second),
		PollTimeout:       ParseDuration("REWARDFLOW_POLL_TIMEOUT", 45*time.Second),
		ReconcileInterval: ParseDuration("REWARDFLOW_RECONCILE_INTERVAL", 5*time.Second),
		ToastTTL:          ParseDuration("REWARDFLOW_TOAST_TTL", 5*time.Second),

		AdsEnabled: ParseBool("REWARDFLOW_ADS_ENABLED", true),
		BlockIDs: map[ledger.Placement]string{
			ledger.PlacementDailyCoins: ParseString("REWARDFLOW_BLOCK_DAILY_COINS", ""),
			ledger.PlacementHint:       ParseString("REWARDFLOW_BLOCK_HINT", ""),
			ledger.PlacementRevive:     ParseString("REWARDFLOW_BLOCK_REVIVE", ""),
		},
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if err := validateBaseURL("REWARDFLOW_LEDGER_URL", c.LedgerBaseURL); err != nil {
		return err
	}
	if c.APIToken == "" {
		return fmt.Errorf("REWARDFLOW_API_TOKEN is required")
	}
	if c.ProviderBaseURL != "" {
		if err := validateBaseURL("REWARDFLOW_PROVIDER_URL", c.ProviderBaseURL); err != nil {
			return err
		}
	}
	if c.PollInterval <= 0 || c.PollTimeout <= 0 || c.ReconcileInterval <= 0 {
		return fmt.Errorf("poll and reconcile intervals must be positive")
	}
	if c.PollInterval >= c.PollTimeout {
		return fmt.Errorf("poll interval %s must be shorter than poll timeout %s", c.PollInterval, c.PollTimeout)
	}
	return nil
}

// AdUnits maps the configured block IDs onto the orchestrator's ad-unit
// table. A placement without a block ID stays present but disabled, so
// preflight can answer without network contact.
func (c Config) AdUnits() map[ledger.Placement]rewarded.AdUnit {
	units := make(map[ledger.Placement]rewarded.AdUnit, len(c.BlockIDs))
	for placement, blockID := range c.BlockIDs {
		units[placement] = rewarded.AdUnit{
			BlockID: blockID,
			Enabled: c.AdsEnabled && blockID != "",
		}
	}
	return units
}

func validateBaseURL(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported %s scheme %q", key, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s %q is missing host", key, raw)
	}
	return nil
}
