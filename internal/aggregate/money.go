// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package aggregate

import "math"

// Currency is carried as integer cents everywhere in this package; the
// helpers below are the only place floating point touches money, and only
// for ratio outputs rounded at the boundary.

// round2 rounds a percentage or ratio to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// pct returns part/total as a percentage rounded to two decimal places.
// A zero total yields 0, not NaN or an error.
func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

// centsPer divides a cents amount evenly across a count (cost per lead,
// average project value). A zero count yields 0.
func centsPer(cents, count int64) int64 {
	if count == 0 {
		return 0
	}
	return cents / count
}

// growthPct returns the percentage change from prev to cur, rounded to two
// decimal places. A zero prev yields 0 rather than an undefined ratio.
func growthPct(cur, prev int64) float64 {
	if prev == 0 {
		return 0
	}
	return round2(float64(cur-prev) / float64(prev) * 100)
}
