// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package aggregate computes the derived business KPIs behind each metric
// topic. Every computation is pure and idempotent: the same underlying
// rows produce a bit-identical payload (modulo the computed_at timestamp),
// and a failed store read yields an error, never a partial payload.
//
// Numeric policy: currency values are integer cents end to end;
// percentages are computed in floating point and rounded to two decimal
// places at the output boundary.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/dashfeed/dashfeed/internal/models"
	"github.com/dashfeed/dashfeed/internal/store"
)

// Aggregator dispatches per-topic computations against the store.
type Aggregator struct {
	store store.Querier
}

// New creates an Aggregator reading through the given store accessor.
func New(st store.Querier) *Aggregator {
	return &Aggregator{store: st}
}

// Compute runs the computation for one topic and assembles its Snapshot.
func (a *Aggregator) Compute(ctx context.Context, topic models.Topic) (*models.Snapshot, error) {
	var (
		payload  map[string]interface{}
		rowCount int64
		err      error
	)

	switch topic {
	case models.TopicLeadResponse:
		payload, rowCount, err = a.computeLeadResponse(ctx)
	case models.TopicConversion:
		payload, rowCount, err = a.computeConversion(ctx)
	case models.TopicMarketingROI:
		payload, rowCount, err = a.computeMarketingROI(ctx)
	case models.TopicPremiumMarkets:
		payload, rowCount, err = a.computePremiumMarkets(ctx)
	case models.TopicRevenueGrowth:
		payload, rowCount, err = a.computeRevenueGrowth(ctx)
	default:
		return nil, fmt.Errorf("no computation registered for topic %q", topic)
	}

	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", topic, err)
	}

	return &models.Snapshot{
		Topic:          topic,
		Payload:        payload,
		ComputedAt:     time.Now().UTC(),
		FreshnessClass: models.ClassForTopic(topic),
		SourceRowCount: rowCount,
	}, nil
}
