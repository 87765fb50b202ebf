// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package store

import (
	"context"
	"time"

	"github.com/dashfeed/dashfeed/internal/metrics"
	"github.com/dashfeed/dashfeed/internal/models"
)

// probeTimeout bounds the liveness ping.
const probeTimeout = 2 * time.Second

// HealthCheck performs a lightweight liveness probe and reports the
// accessor's health state. The probe runs behind a circuit breaker so a
// down store is not hammered: while the breaker is open the probe fails
// fast and callers short-circuit aggregation (serving stale cache
// instead).
func (s *Store) HealthCheck(ctx context.Context) models.HealthState {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		return struct{}{}, s.db.PingContext(probeCtx)
	})

	if err != nil {
		s.consecutiveFailures.Add(1)
	} else {
		s.consecutiveFailures.Store(0)
		s.lastSuccess.Store(time.Now())
	}

	state := s.healthState()
	if state.Healthy {
		metrics.StoreHealthy.Set(1)
	} else {
		metrics.StoreHealthy.Set(0)
	}
	return state
}

// healthState assembles the current HealthState without probing.
func (s *Store) healthState() models.HealthState {
	failures := s.consecutiveFailures.Load()
	lastSuccess, _ := s.lastSuccess.Load().(time.Time)
	stats := s.db.Stats()

	return models.HealthState{
		Healthy:             failures == 0,
		ConsecutiveFailures: int(failures),
		LastSuccessAt:       lastSuccess,
		Pool: models.PoolStats{
			MaxOpen:   stats.MaxOpenConnections,
			Open:      stats.OpenConnections,
			InUse:     stats.InUse,
			Idle:      stats.Idle,
			WaitCount: stats.WaitCount,
		},
	}
}
