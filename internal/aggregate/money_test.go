// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package aggregate

import "testing"

func TestPct(t *testing.T) {
	tests := []struct {
		name        string
		part, total int64
		want        float64
	}{
		{"zero total", 10, 0, 0},
		{"zero part", 0, 10, 0},
		{"whole", 50, 50, 100},
		{"half", 1, 2, 50},
		{"rounds to two places", 1, 3, 33.33},
		{"rounds up", 2, 3, 66.67},
		{"over 100", 300, 200, 150},
		{"negative part", -5000, 10000, -50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pct(tt.part, tt.total); got != tt.want {
				t.Errorf("pct(%d, %d) = %v, want %v", tt.part, tt.total, got, tt.want)
			}
		})
	}
}

func TestCentsPer(t *testing.T) {
	tests := []struct {
		name         string
		cents, count int64
		want         int64
	}{
		{"zero count", 1000, 0, 0},
		{"even", 1000, 4, 250},
		{"truncates", 1000, 3, 333},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := centsPer(tt.cents, tt.count); got != tt.want {
				t.Errorf("centsPer(%d, %d) = %d, want %d", tt.cents, tt.count, got, tt.want)
			}
		})
	}
}

func TestGrowthPct(t *testing.T) {
	tests := []struct {
		name      string
		cur, prev int64
		want      float64
	}{
		{"zero prev", 100, 0, 0},
		{"doubles", 200, 100, 100},
		{"halves", 100, 200, -50},
		{"flat", 100, 100, 0},
		{"fractional", 100001, 100000, 0},
		{"rounds", 110001, 100000, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := growthPct(tt.cur, tt.prev); got != tt.want {
				t.Errorf("growthPct(%d, %d) = %v, want %v", tt.cur, tt.prev, got, tt.want)
			}
		})
	}
}
