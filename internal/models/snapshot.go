// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package models defines the shared data types of the metrics distribution
// core: topics, freshness classes, snapshots, dirty signals, and store
// health state. All other packages depend on models; models depends on
// nothing inside the project.
package models

import (
	"fmt"
	"time"
)

// Topic names one derivable business aggregate. The topic set is immutable
// and known at startup; unknown topics are rejected at the API boundary.
type Topic string

// The five dashboard topics.
const (
	TopicPremiumMarkets Topic = "premium_markets"
	TopicLeadResponse   Topic = "lead_response"
	TopicMarketingROI   Topic = "marketing_roi"
	TopicConversion     Topic = "conversion"
	TopicRevenueGrowth  Topic = "revenue_growth"
)

// AllTopics returns the full topic set in a stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicPremiumMarkets,
		TopicLeadResponse,
		TopicMarketingROI,
		TopicConversion,
		TopicRevenueGrowth,
	}
}

// ParseTopic validates a topic name against the known set.
func ParseTopic(s string) (Topic, error) {
	for _, t := range AllTopics() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// FreshnessClass determines a topic's cache TTL and recompute cadence.
type FreshnessClass string

const (
	// ClassRealtime is for volatile topics (lead response times).
	ClassRealtime FreshnessClass = "REALTIME"

	// ClassStandard is for topics that change with normal CRUD traffic.
	ClassStandard FreshnessClass = "STANDARD"

	// ClassHistorical is for slow-moving rollups (monthly revenue).
	ClassHistorical FreshnessClass = "HISTORICAL"
)

// Fixed TTLs per freshness class.
const (
	RealtimeTTL   = 30 * time.Second
	StandardTTL   = 5 * time.Minute
	HistoricalTTL = time.Hour
)

// TTL returns the cache time-to-live for the class.
func (c FreshnessClass) TTL() time.Duration {
	switch c {
	case ClassRealtime:
		return RealtimeTTL
	case ClassHistorical:
		return HistoricalTTL
	default:
		return StandardTTL
	}
}

// ClassForTopic maps each topic to its freshness class based on how
// volatile the underlying records are.
func ClassForTopic(t Topic) FreshnessClass {
	switch t {
	case TopicLeadResponse:
		return ClassRealtime
	case TopicRevenueGrowth:
		return ClassHistorical
	default:
		return ClassStandard
	}
}

// Snapshot is the latest computed value of a topic plus metadata. Snapshots
// are superseded, never mutated: each recomputation produces a new Snapshot
// and the old one is discarded. Degraded is set only on copies served past
// their TTL (stale-but-within-ceiling fallback).
type Snapshot struct {
	Topic          Topic                  `json:"topic"`
	Payload        map[string]interface{} `json:"payload"`
	ComputedAt     time.Time              `json:"computed_at"`
	FreshnessClass FreshnessClass         `json:"freshness_class"`
	SourceRowCount int64                  `json:"source_row_count"`
	Degraded       bool                   `json:"degraded,omitempty"`
}

// DegradedCopy returns a copy of the snapshot flagged as degraded.
// The original is left untouched so live subscribers never observe the flag.
func (s *Snapshot) DegradedCopy() *Snapshot {
	cp := *s
	cp.Degraded = true
	return &cp
}

// DirtySignal is an ephemeral staleness hint consumed at most once by the
// notifier's recompute loop. It is never persisted.
type DirtySignal struct {
	ID       string    `json:"id"`
	Topic    Topic     `json:"topic"`
	Reason   string    `json:"reason"`
	RaisedAt time.Time `json:"raised_at"`
}

// PoolStats is a point-in-time view of the store's connection pool.
type PoolStats struct {
	MaxOpen   int   `json:"max_open"`
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"wait_count"`
}

// HealthState reports store accessor liveness. It is mutated only by the
// accessor itself and read by health-check callers, who use it to
// short-circuit aggregation when the store is down.
type HealthState struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccessAt       time.Time `json:"last_success_at"`
	Pool                PoolStats `json:"pool"`
}
