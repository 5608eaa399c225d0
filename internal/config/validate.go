package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) must not exceed max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	if c.Pagination.DefaultLimit == 0 {
		return fmt.Errorf("pagination.default_limit must be > 0")
	}
	if c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("pagination.max_limit (%d) must be >= default_limit (%d)", c.Pagination.MaxLimit, c.Pagination.DefaultLimit)
	}

	// bcrypt.MinCost .. bcrypt.MaxCost
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost must be in [4, 31] (got %d)", c.Auth.BcryptCost)
	}

	if c.Metrics.Enabled() {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr must be host:port (got %q): %w", c.Metrics.Addr, err)
		}
		if c.Metrics.ShutdownTimeout <= 0 {
			return fmt.Errorf("metrics.shutdown_timeout must be > 0")
		}
	}

	return nil
}
