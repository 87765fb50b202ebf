// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package store wraps the relational connection pool with transient-failure
// retries, error classification, and a circuit-breaker-guarded liveness
// probe. It is the only component that talks to PostgreSQL; everything
// above it consumes the narrow Querier contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/metrics"
)

// Row is the single-row scan contract, satisfied by *sql.Row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Rows is the multi-row iteration contract, satisfied by *sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Querier is the read contract the aggregator consumes. Implementations
// must apply their own resilience policy; callers never retry.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
}

// Store is the resilient accessor over the PostgreSQL pool.
//
// Retry policy: a classified-transient failure is retried up to
// cfg.RetryAttempts total attempts with exponential backoff (base delay
// doubling per attempt, optional jitter). Permanent errors surface
// immediately. After exhausting retries the last error is returned wrapped
// in ErrUnavailable; the caller decides fallback behavior.
type Store struct {
	db      *sql.DB
	cfg     config.DatabaseConfig
	breaker *gobreaker.CircuitBreaker[struct{}]

	consecutiveFailures atomic.Int64
	lastSuccess         atomic.Value // time.Time

	// sleep is injectable for backoff tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New opens the connection pool and verifies liveness with a bounded ping.
func New(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	s := newWithDB(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		// The store may simply not be up yet; the accessor stays usable
		// and the health probe reports the failure.
		logging.Warn().Err(err).Msg("store not reachable at startup")
		s.consecutiveFailures.Store(1)
	} else {
		s.lastSuccess.Store(time.Now())
	}

	return s, nil
}

// newWithDB wires a Store around an existing pool. Split out for tests.
func newWithDB(db *sql.DB, cfg config.DatabaseConfig) *Store {
	s := &Store{
		db:    db,
		cfg:   cfg,
		sleep: sleepCtx,
	}
	s.lastSuccess.Store(time.Time{})

	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "store-probe",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state change")
		},
	})

	return s
}

// Query runs a read statement with the retry policy and returns its rows.
func (s *Store) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryRow runs a single-row read statement with the retry policy.
// Errors are deferred to Scan, matching database/sql semantics.
func (s *Store) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	rows, err := s.Query(ctx, query, args...)
	return &row{rows: rows, err: err}
}

// withRetry executes op up to cfg.RetryAttempts times, backing off
// exponentially between transient failures. Permanent errors return
// immediately.
func (s *Store) withRetry(ctx context.Context, op func(context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
		metrics.StoreConnectionsInUse.Set(float64(s.db.Stats().InUse))
	}()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoffDelay(attempt)
			logging.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying store query after transient failure")
			metrics.StoreQueryRetries.Inc()
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op(ctx)
		if err == nil {
			s.consecutiveFailures.Store(0)
			s.lastSuccess.Store(time.Now())
			return nil
		}

		if !IsTransient(err) {
			metrics.StoreQueryErrors.WithLabelValues("permanent").Inc()
			logging.Error().Err(err).Msg("permanent store error, not retrying")
			return err
		}
		lastErr = err
	}

	s.consecutiveFailures.Add(1)
	metrics.StoreQueryErrors.WithLabelValues("transient").Inc()
	return fmt.Errorf("%w: %d attempts exhausted: %s", ErrUnavailable, s.cfg.RetryAttempts, lastErr)
}

// backoffDelay returns the delay before the given attempt (attempt >= 2):
// base, 2*base, 4*base, ... with up to 25% jitter when enabled.
func (s *Store) backoffDelay(attempt int) time.Duration {
	delay := s.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-2))
	if s.cfg.RetryJitter && delay > 0 {
		delay += rand.N(delay / 4)
	}
	return delay
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// sleepCtx blocks for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// row adapts a Rows result to the single-row Scan contract so QueryRow
// shares the retry path with Query.
type row struct {
	rows Rows
	err  error
}

// Scan reads the first row into dest, mirroring sql.Row behavior:
// sql.ErrNoRows when the result set is empty.
func (r *row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	defer func() { _ = r.rows.Close() }()

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := r.rows.Scan(dest...); err != nil {
		return err
	}
	return r.rows.Close()
}

// Compile-time checks: *sql.DB products satisfy the narrow contracts.
var (
	_ Rows    = (*sql.Rows)(nil)
	_ Querier = (*Store)(nil)
)
