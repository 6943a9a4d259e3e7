package config

import (
	"fmt"
	"strings"
	"time"
)

// Validation bounds.
const (
	minTopK = 1
	maxTopK = 20

	minQueryTimeout = 1 * time.Second
	maxQueryTimeout = 5 * time.Minute
)

// Validate checks all configuration values and returns the first problem
// found, wrapped around its sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidListenAddr)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedderModel)
	}

	if c.TopK < minTopK || c.TopK > maxTopK {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidTopK, c.TopK, minTopK, maxTopK)
	}
	if c.QueryTimeout < minQueryTimeout || c.QueryTimeout > maxQueryTimeout {
		return fmt.Errorf("%w: query_timeout %s (must be %s-%s)",
			ErrInvalidTimeout, c.QueryTimeout, minQueryTimeout, maxQueryTimeout)
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("%w: step_delay %s (must not be negative)", ErrInvalidTimeout, c.StepDelay)
	}
	if c.ItemDelay < 0 {
		return fmt.Errorf("%w: item_delay %s (must not be negative)", ErrInvalidTimeout, c.ItemDelay)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresDBName)
	}

	return nil
}
