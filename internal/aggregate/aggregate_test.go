// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package aggregate

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/dashfeed/dashfeed/internal/models"
	"github.com/dashfeed/dashfeed/internal/store"
)

// fakeStore serves canned rows keyed by a distinctive substring of the
// query text.
type fakeStore struct {
	results map[string][][]interface{}
	err     error
}

func (f *fakeStore) lookup(query string) ([][]interface{}, bool) {
	for key, rows := range f.results {
		if strings.Contains(query, key) {
			return rows, true
		}
	}
	return nil, false
}

func (f *fakeStore) Query(_ context.Context, query string, _ ...interface{}) (store.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.lookup(query)
	if !ok {
		return nil, errors.New("no canned result for query")
	}
	return &fakeRows{values: rows}, nil
}

func (f *fakeStore) QueryRow(ctx context.Context, query string, args ...interface{}) store.Row {
	rows, err := f.Query(ctx, query, args...)
	return &fakeRow{rows: rows, err: err}
}

type fakeRows struct {
	values [][]interface{}
	idx    int
}

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.values) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Scan(dest ...interface{}) error {
	src := f.values[f.idx-1]
	for i := range dest {
		switch d := dest[i].(type) {
		case *int64:
			*d = src[i].(int64)
		case *string:
			*d = src[i].(string)
		default:
			return errors.New("unsupported scan type in test fake")
		}
	}
	return nil
}

func (f *fakeRows) Err() error   { return nil }
func (f *fakeRows) Close() error { return nil }

type fakeRow struct {
	rows store.Rows
	err  error
}

func (f *fakeRow) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	if !f.rows.Next() {
		return errors.New("no rows in test fake")
	}
	return f.rows.Scan(dest...)
}

func TestComputeLeadResponse(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"response_minutes": {{int64(40), int64(30)}},
	}}

	snap, err := New(st).Compute(context.Background(), models.TopicLeadResponse)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if snap.Topic != models.TopicLeadResponse {
		t.Errorf("topic = %s", snap.Topic)
	}
	if snap.FreshnessClass != models.ClassRealtime {
		t.Errorf("class = %s, want REALTIME", snap.FreshnessClass)
	}
	if snap.SourceRowCount != 40 {
		t.Errorf("source rows = %d, want 40", snap.SourceRowCount)
	}
	if got := snap.Payload["compliance_pct"]; got != 75.0 {
		t.Errorf("compliance_pct = %v, want 75", got)
	}
	if snap.Degraded {
		t.Error("fresh snapshot must not be degraded")
	}
	if snap.ComputedAt.Location() != snap.ComputedAt.UTC().Location() {
		t.Error("computed_at must be UTC")
	}
}

func TestComputeConversionZeroLeads(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"converted": {{int64(0), int64(0)}},
	}}

	snap, err := New(st).Compute(context.Background(), models.TopicConversion)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// Division by zero must yield 0, not NaN.
	if got := snap.Payload["conversion_rate_pct"]; got != 0.0 {
		t.Errorf("conversion_rate_pct = %v, want 0", got)
	}
}

func TestComputeMarketingROI(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"campaign_spend": {
			{"email", int64(10000), int64(4), int64(25000)},
			{"search", int64(50000), int64(0), int64(0)},
		},
	}}

	snap, err := New(st).Compute(context.Background(), models.TopicMarketingROI)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	channels, ok := snap.Payload["channels"].([]map[string]interface{})
	if !ok || len(channels) != 2 {
		t.Fatalf("channels = %v", snap.Payload["channels"])
	}

	email := channels[0]
	if email["cost_per_lead_cents"] != int64(2500) {
		t.Errorf("cost_per_lead_cents = %v, want 2500", email["cost_per_lead_cents"])
	}
	if email["roi_pct"] != 150.0 {
		t.Errorf("roi_pct = %v, want 150", email["roi_pct"])
	}

	// A channel with zero leads must not divide by zero.
	search := channels[1]
	if search["cost_per_lead_cents"] != int64(0) {
		t.Errorf("zero-lead cost_per_lead_cents = %v, want 0", search["cost_per_lead_cents"])
	}

	if snap.Payload["total_spend_cents"] != int64(60000) {
		t.Errorf("total_spend_cents = %v, want 60000", snap.Payload["total_spend_cents"])
	}
	if snap.SourceRowCount != 2 {
		t.Errorf("source rows = %d, want 2", snap.SourceRowCount)
	}
}

func TestComputePremiumMarkets(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"market": {
			{"austin", int64(4), int64(1000000)},
			{"denver", int64(2), int64(500001)},
		},
	}}

	snap, err := New(st).Compute(context.Background(), models.TopicPremiumMarkets)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	markets := snap.Payload["markets"].([]map[string]interface{})
	if len(markets) != 2 {
		t.Fatalf("markets = %d, want 2", len(markets))
	}
	if markets[0]["market"] != "austin" {
		t.Errorf("first market = %v, want austin (store ordering preserved)", markets[0]["market"])
	}
	if markets[0]["avg_value_cents"] != int64(250000) {
		t.Errorf("avg_value_cents = %v, want 250000", markets[0]["avg_value_cents"])
	}
	// Integer division truncates; currency stays in whole cents.
	if markets[1]["avg_value_cents"] != int64(250000) {
		t.Errorf("truncated avg = %v, want 250000", markets[1]["avg_value_cents"])
	}
}

func TestComputeRevenueGrowth(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"revenue_targets": {
			{"2026-06", int64(100000), int64(120000)},
			{"2026-07", int64(150000), int64(120000)},
			{"2026-08", int64(75000), int64(0)},
		},
	}}

	snap, err := New(st).Compute(context.Background(), models.TopicRevenueGrowth)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if snap.FreshnessClass != models.ClassHistorical {
		t.Errorf("class = %s, want HISTORICAL", snap.FreshnessClass)
	}

	months := snap.Payload["months"].([]map[string]interface{})
	if len(months) != 3 {
		t.Fatalf("months = %d, want 3", len(months))
	}

	// First month has no predecessor: growth is 0, not undefined.
	if months[0]["growth_pct"] != 0.0 {
		t.Errorf("first month growth = %v, want 0", months[0]["growth_pct"])
	}
	if months[1]["growth_pct"] != 50.0 {
		t.Errorf("second month growth = %v, want 50", months[1]["growth_pct"])
	}
	if months[2]["growth_pct"] != -50.0 {
		t.Errorf("third month growth = %v, want -50", months[2]["growth_pct"])
	}
	if months[0]["to_target_pct"] != 83.33 {
		t.Errorf("to_target_pct = %v, want 83.33", months[0]["to_target_pct"])
	}
	// Missing target must not divide by zero.
	if months[2]["to_target_pct"] != 0.0 {
		t.Errorf("zero-target to_target_pct = %v, want 0", months[2]["to_target_pct"])
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	st := &fakeStore{results: map[string][][]interface{}{
		"converted": {{int64(100), int64(23)}},
	}}
	agg := New(st)

	first, err := agg.Compute(context.Background(), models.TopicConversion)
	if err != nil {
		t.Fatalf("first Compute: %v", err)
	}

	// Reset the fake's cursor by rebuilding it with identical data.
	st.results["converted"] = [][]interface{}{{int64(100), int64(23)}}
	second, err := agg.Compute(context.Background(), models.TopicConversion)
	if err != nil {
		t.Fatalf("second Compute: %v", err)
	}

	if !reflect.DeepEqual(first.Payload, second.Payload) {
		t.Errorf("payloads differ across identical inputs:\n%v\n%v", first.Payload, second.Payload)
	}
}

func TestComputeStoreFailureYieldsNoPartial(t *testing.T) {
	st := &fakeStore{err: errors.New("store unavailable")}

	snap, err := New(st).Compute(context.Background(), models.TopicMarketingROI)
	if err == nil {
		t.Fatal("want error when store read fails")
	}
	if snap != nil {
		t.Error("failed compute must not return a partial snapshot")
	}
}

func TestComputeUnknownTopic(t *testing.T) {
	if _, err := New(&fakeStore{}).Compute(context.Background(), models.Topic("bogus")); err == nil {
		t.Fatal("want error for unregistered topic")
	}
}
