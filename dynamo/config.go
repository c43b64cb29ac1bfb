package dynamo

import (
	"log/slog"
	"time"

	"github.com/jacentio/lattice/store"
)

// Config holds configuration for the DynamoDB store.
type Config struct {
	// Logger receives creation-wait and retry diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger

	// ActivationPollInterval is the wait between DescribeTable polls while
	// a key-table transitions to ACTIVE.
	// Default: 1s
	ActivationPollInterval time.Duration

	// ActivationMaxPolls caps activation polls before the resolve fails
	// with a timeout.
	// Default: 300 (about 5 minutes at the default interval)
	ActivationMaxPolls int

	// Retry bounds the read-modify-write contention loop used where
	// DynamoDB has no single-request primitive (array element removal).
	// Default: store.DefaultRetryPolicy()
	Retry store.RetryPolicy
}

// DefaultConfig returns the standard production settings.
func DefaultConfig() Config {
	return Config{
		ActivationPollInterval: time.Second,
		ActivationMaxPolls:     300,
		Retry:                  store.DefaultRetryPolicy(),
	}
}

// validate fills zero values with defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ActivationPollInterval <= 0 {
		c.ActivationPollInterval = time.Second
	}
	if c.ActivationMaxPolls < 1 {
		c.ActivationMaxPolls = 300
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = store.DefaultRetryPolicy()
	}
}
