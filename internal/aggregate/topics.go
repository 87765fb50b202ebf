// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package aggregate

import (
	"context"
	"fmt"
)

// leadResponseTargetMinutes is the SLA used for response-time compliance.
const leadResponseTargetMinutes = 15

// Read contracts. The schema belongs to the CRUD layer; these queries only
// rely on the stable column names below.
const (
	leadResponseQuery = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE response_minutes IS NOT NULL AND response_minutes <= $1)
		FROM leads
		WHERE created_at >= NOW() - INTERVAL '30 days'`

	conversionQuery = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'converted')
		FROM leads
		WHERE created_at >= NOW() - INTERVAL '90 days'`

	marketingROIQuery = `
		SELECT cs.channel,
		       cs.spend_cents,
		       COUNT(l.id),
		       COALESCE(SUM(l.revenue_cents), 0)
		FROM campaign_spend cs
		LEFT JOIN leads l
		       ON l.channel = cs.channel
		      AND l.created_at >= NOW() - INTERVAL '90 days'
		GROUP BY cs.channel, cs.spend_cents
		ORDER BY cs.channel`

	premiumMarketsQuery = `
		SELECT market,
		       COUNT(*),
		       COALESCE(SUM(value_cents), 0)
		FROM projects
		WHERE status <> 'cancelled'
		GROUP BY market
		ORDER BY SUM(value_cents) DESC, market
		LIMIT 10`

	revenueGrowthQuery = `
		SELECT to_char(date_trunc('month', p.closed_at), 'YYYY-MM'),
		       COALESCE(SUM(p.value_cents), 0),
		       COALESCE(MAX(t.target_cents), 0)
		FROM projects p
		LEFT JOIN revenue_targets t
		       ON t.month = date_trunc('month', p.closed_at)::date
		WHERE p.status = 'won'
		  AND p.closed_at >= date_trunc('month', NOW()) - INTERVAL '11 months'
		GROUP BY 1
		ORDER BY 1`
)

// computeLeadResponse derives response-time SLA compliance for recent leads.
func (a *Aggregator) computeLeadResponse(ctx context.Context) (map[string]interface{}, int64, error) {
	var total, withinTarget int64
	row := a.store.QueryRow(ctx, leadResponseQuery, leadResponseTargetMinutes)
	if err := row.Scan(&total, &withinTarget); err != nil {
		return nil, 0, fmt.Errorf("lead response query: %w", err)
	}

	return map[string]interface{}{
		"total_leads":    total,
		"within_target":  withinTarget,
		"compliance_pct": pct(withinTarget, total),
		"target_minutes": int64(leadResponseTargetMinutes),
	}, total, nil
}

// computeConversion derives the lead-to-customer conversion rate.
func (a *Aggregator) computeConversion(ctx context.Context) (map[string]interface{}, int64, error) {
	var total, converted int64
	row := a.store.QueryRow(ctx, conversionQuery)
	if err := row.Scan(&total, &converted); err != nil {
		return nil, 0, fmt.Errorf("conversion query: %w", err)
	}

	return map[string]interface{}{
		"total_leads":         total,
		"converted":           converted,
		"conversion_rate_pct": pct(converted, total),
	}, total, nil
}

// computeMarketingROI derives per-channel cost-per-lead and return on spend.
func (a *Aggregator) computeMarketingROI(ctx context.Context) (map[string]interface{}, int64, error) {
	rows, err := a.store.Query(ctx, marketingROIQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("marketing roi query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		channels           []map[string]interface{}
		rowCount           int64
		totalSpendCents    int64
		totalRevenueCents  int64
		totalLeadsAcquired int64
	)
	for rows.Next() {
		var (
			channel      string
			spendCents   int64
			leads        int64
			revenueCents int64
		)
		if err := rows.Scan(&channel, &spendCents, &leads, &revenueCents); err != nil {
			return nil, 0, fmt.Errorf("marketing roi scan: %w", err)
		}
		rowCount++
		totalSpendCents += spendCents
		totalRevenueCents += revenueCents
		totalLeadsAcquired += leads

		channels = append(channels, map[string]interface{}{
			"channel":             channel,
			"spend_cents":         spendCents,
			"leads":               leads,
			"revenue_cents":       revenueCents,
			"cost_per_lead_cents": centsPer(spendCents, leads),
			"roi_pct":             pct(revenueCents-spendCents, spendCents),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("marketing roi rows: %w", err)
	}

	return map[string]interface{}{
		"channels":            channels,
		"total_spend_cents":   totalSpendCents,
		"total_revenue_cents": totalRevenueCents,
		"total_leads":         totalLeadsAcquired,
		"overall_roi_pct":     pct(totalRevenueCents-totalSpendCents, totalSpendCents),
	}, rowCount, nil
}

// computePremiumMarkets ranks markets by total active project value.
func (a *Aggregator) computePremiumMarkets(ctx context.Context) (map[string]interface{}, int64, error) {
	rows, err := a.store.Query(ctx, premiumMarketsQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("premium markets query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		markets  []map[string]interface{}
		rowCount int64
	)
	for rows.Next() {
		var (
			market          string
			projectCount    int64
			totalValueCents int64
		)
		if err := rows.Scan(&market, &projectCount, &totalValueCents); err != nil {
			return nil, 0, fmt.Errorf("premium markets scan: %w", err)
		}
		rowCount++

		markets = append(markets, map[string]interface{}{
			"market":            market,
			"project_count":     projectCount,
			"total_value_cents": totalValueCents,
			"avg_value_cents":   centsPer(totalValueCents, projectCount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("premium markets rows: %w", err)
	}

	return map[string]interface{}{
		"markets": markets,
	}, rowCount, nil
}

// computeRevenueGrowth derives the monthly revenue rollup with
// month-over-month growth and revenue-to-target ratios.
func (a *Aggregator) computeRevenueGrowth(ctx context.Context) (map[string]interface{}, int64, error) {
	rows, err := a.store.Query(ctx, revenueGrowthQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("revenue growth query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		months    []map[string]interface{}
		rowCount  int64
		prevCents int64
	)
	for rows.Next() {
		var (
			month        string
			revenueCents int64
			targetCents  int64
		)
		if err := rows.Scan(&month, &revenueCents, &targetCents); err != nil {
			return nil, 0, fmt.Errorf("revenue growth scan: %w", err)
		}
		rowCount++

		months = append(months, map[string]interface{}{
			"month":         month,
			"revenue_cents": revenueCents,
			"target_cents":  targetCents,
			"growth_pct":    growthPct(revenueCents, prevCents),
			"to_target_pct": pct(revenueCents, targetCents),
		})
		prevCents = revenueCents
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("revenue growth rows: %w", err)
	}

	return map[string]interface{}{
		"months": months,
	}, rowCount, nil
}
