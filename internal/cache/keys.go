// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package cache

import (
	"crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dashfeed/dashfeed/internal/models"
)

// TopicKey returns the cache key for a topic's unparameterized snapshot.
// Keys are namespaced by topic so InvalidatePattern(string(topic)) removes
// every variant of that topic.
func TopicKey(topic models.Topic) string {
	return string(topic) + ":snapshot"
}

// ParamKey returns a cache key of the form {topic}:{param-hash} for a
// parameterized variant of a topic's computation.
func ParamKey(topic models.Topic, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		// Fallback to a readable key; params that fail to marshal are
		// still distinguishable.
		return fmt.Sprintf("%s:%v", topic, params)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", topic, hash[:16])
}
