// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

// ErrUnavailable is returned when a query has exhausted its retry budget
// against a store that keeps failing transiently.
var ErrUnavailable = errors.New("store unavailable")

// IsTransient classifies an error as retryable. Transient errors are
// connection-level failures, timeouts, and pool exhaustion; everything
// else (malformed statements, schema mismatches, constraint violations)
// is permanent and must surface immediately without retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// PostgreSQL error classes: 08 connection exception, 53 insufficient
	// resources (including 53300 too_many_connections), 57 operator
	// intervention (shutdown in progress).
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		default:
			return false
		}
	}

	return matchesTransientMessage(err.Error())
}

// matchesTransientMessage catches driver errors that arrive as plain
// strings rather than typed values.
func matchesTransientMessage(msg string) bool {
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"i/o timeout",
		"too many connections",
		"the database system is starting up",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
