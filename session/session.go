// Package session holds the per-run identity and immutable
// configuration described in spec §3.
package session

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// Config is the frozen analysis configuration for one session (spec §3,
// §6). It is constructed once, validated, and never mutated afterward.
type Config struct {
	Weeks                int
	TopNCoins            int
	CorrelationThreshold float64
	RSIPeriod            int
	Timeframes           []string
	LowCapPercentile     float64
	PubSubURL            string
}

// Validate enforces the bounds in spec §3/§6. A non-nil error means
// ConfigurationInvalid (spec §7 class 5): callers must abort with exit
// code 1 before starting any worker.
func (c Config) Validate() error {
	switch {
	case c.Weeks <= 0:
		return fmt.Errorf("weeks must be > 0, got %d", c.Weeks)
	case c.TopNCoins <= 0:
		return fmt.Errorf("top_n_coins must be > 0, got %d", c.TopNCoins)
	case c.CorrelationThreshold < 0 || c.CorrelationThreshold > 1:
		return fmt.Errorf("correlation_threshold must be within [0,1], got %f", c.CorrelationThreshold)
	case c.RSIPeriod <= 1:
		return fmt.Errorf("rsi_period must be > 1, got %d", c.RSIPeriod)
	case len(c.Timeframes) == 0:
		return fmt.Errorf("timeframes must not be empty")
	case c.LowCapPercentile < 0 || c.LowCapPercentile > 100:
		return fmt.Errorf("low_cap_percentile must be within [0,100], got %f", c.LowCapPercentile)
	case c.PubSubURL == "":
		return fmt.Errorf("pubsub_url must not be empty")
	}
	return nil
}

// Session is one analysis run: a GUID plus its frozen configuration
// (spec §3). It owns all other pipeline state exclusively.
type Session struct {
	GUID   string
	Config Config
}

// New creates a session with a freshly generated GUID, after
// validating the configuration.
func New(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	guid, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("generating session guid: %w", err)
	}
	return &Session{GUID: guid, Config: cfg}, nil
}
