// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package cache

import (
	"strings"
	"testing"

	"github.com/dashfeed/dashfeed/internal/models"
)

func TestTopicKey(t *testing.T) {
	if got := TopicKey(models.TopicConversion); got != "conversion:snapshot" {
		t.Errorf("TopicKey = %q", got)
	}
}

func TestParamKeyDeterministic(t *testing.T) {
	params := map[string]interface{}{"window_days": 30}

	a := ParamKey(models.TopicMarketingROI, params)
	b := ParamKey(models.TopicMarketingROI, map[string]interface{}{"window_days": 30})
	if a != b {
		t.Errorf("identical params produced different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "marketing_roi:") {
		t.Errorf("key %q must be namespaced by topic", a)
	}
}

func TestParamKeyDistinguishesParams(t *testing.T) {
	a := ParamKey(models.TopicMarketingROI, map[string]interface{}{"window_days": 30})
	b := ParamKey(models.TopicMarketingROI, map[string]interface{}{"window_days": 90})
	if a == b {
		t.Error("different params must produce different keys")
	}
}

func TestParamKeySharesTopicPrefixWithTopicKey(t *testing.T) {
	// InvalidatePattern on the topic name must catch both the plain
	// snapshot key and every parameterized variant.
	topic := models.TopicPremiumMarkets
	if !strings.HasPrefix(TopicKey(topic), string(topic)) {
		t.Error("TopicKey must start with the topic name")
	}
	if !strings.HasPrefix(ParamKey(topic, "x"), string(topic)) {
		t.Error("ParamKey must start with the topic name")
	}
}
