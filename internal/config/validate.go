// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid or inconsistent values.
// It runs every section validator and reports the first failure.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateCache,
		c.validateNotifier,
		c.validateStream,
		c.validateLogging,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.AdminRateLimit < 1 {
		return fmt.Errorf("server.admin_rate_limit must be at least 1, got %d", c.Server.AdminRateLimit)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if !strings.HasPrefix(c.Database.DSN, "postgres://") && !strings.HasPrefix(c.Database.DSN, "postgresql://") {
		return fmt.Errorf("database.dsn must be a postgres:// URL")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Database.RetryAttempts < 1 {
		return fmt.Errorf("database.retry_attempts must be at least 1, got %d", c.Database.RetryAttempts)
	}
	if c.Database.RetryBaseDelay <= 0 {
		return fmt.Errorf("database.retry_base_delay must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.RealtimeTTL <= 0 || c.Cache.StandardTTL <= 0 || c.Cache.HistoricalTTL <= 0 {
		return fmt.Errorf("cache TTLs must all be positive")
	}
	if c.Cache.RealtimeTTL > c.Cache.StandardTTL || c.Cache.StandardTTL > c.Cache.HistoricalTTL {
		return fmt.Errorf("cache TTLs must be ordered: realtime <= standard <= historical")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache.cleanup_interval must be positive")
	}
	return nil
}

func (c *Config) validateNotifier() error {
	if c.Notifier.MaxConcurrentRecomputes < 1 {
		return fmt.Errorf("notifier.max_concurrent_recomputes must be at least 1, got %d",
			c.Notifier.MaxConcurrentRecomputes)
	}
	if c.Notifier.StaleCeilingMultiplier < 1 {
		return fmt.Errorf("notifier.stale_ceiling_multiplier must be at least 1, got %d",
			c.Notifier.StaleCeilingMultiplier)
	}
	if c.Notifier.MissWait <= 0 {
		return fmt.Errorf("notifier.miss_wait must be positive")
	}
	if c.Notifier.RetryInterval <= 0 {
		return fmt.Errorf("notifier.retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.IdleTimeout <= 0 {
		return fmt.Errorf("stream.idle_timeout must be positive")
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive")
	}
	if c.Stream.HeartbeatInterval >= c.Stream.IdleTimeout {
		return fmt.Errorf("stream.heartbeat_interval (%s) must be shorter than stream.idle_timeout (%s)",
			c.Stream.HeartbeatInterval, c.Stream.IdleTimeout)
	}
	if c.Stream.WriteFailureLimit < 1 {
		return fmt.Errorf("stream.write_failure_limit must be at least 1, got %d", c.Stream.WriteFailureLimit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled", "":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
