// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// timeoutErr implements net.Error with Timeout() true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"pq connection exception", &pq.Error{Code: "08006"}, true},
		{"pq too many connections", &pq.Error{Code: "53300"}, true},
		{"pq shutdown in progress", &pq.Error{Code: "57P01"}, true},
		{"pq syntax error", &pq.Error{Code: "42601"}, false},
		{"pq undefined table", &pq.Error{Code: "42P01"}, false},
		{"pq constraint violation", &pq.Error{Code: "23505"}, false},
		{"string connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), true},
		{"string broken pipe", errors.New("write: broken pipe"), true},
		{"string starting up", errors.New("pq: the database system is starting up"), true},
		{"plain error", errors.New("something else entirely"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrUnavailableIsWrappable(t *testing.T) {
	wrapped := fmt.Errorf("%w: 3 attempts exhausted", ErrUnavailable)
	if !errors.Is(wrapped, ErrUnavailable) {
		t.Error("wrapped error should match ErrUnavailable with errors.Is")
	}
}
