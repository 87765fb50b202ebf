// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package notifier owns the freshness state machine that connects dirty
// signals to recomputation. Each topic is FRESH, DIRTY, or RECOMPUTING;
// dirty signals raised while a recompute is in flight coalesce into at
// most one follow-up recompute, and recompute concurrency is capped
// globally so a burst of writes cannot saturate the store.
//
// Dirty signals are ephemeral: a signal raised and consumed leaves no
// trace beyond the fresh snapshot it produced. Losing one costs at most
// one refresh cadence of staleness.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dashfeed/dashfeed/internal/cache"
	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/metrics"
	"github.com/dashfeed/dashfeed/internal/models"
)

// ErrSnapshotUnavailable is returned by SnapshotForPull when a topic has
// no serveable snapshot: nothing cached, nothing within the staleness
// ceiling, and the bounded recompute wait produced nothing.
var ErrSnapshotUnavailable = errors.New("no snapshot available for topic")

// ErrUnknownTopic is returned for topics outside the registered set.
var ErrUnknownTopic = errors.New("unknown topic")

// Computer produces a fresh snapshot for a topic. Satisfied by
// aggregate.Aggregator.
type Computer interface {
	Compute(ctx context.Context, topic models.Topic) (*models.Snapshot, error)
}

// Publisher receives every successfully computed snapshot. Satisfied by
// broadcast.Hub.
type Publisher interface {
	Publish(snap *models.Snapshot)
}

// State is a topic's position in the freshness machine.
type State int

const (
	// StateFresh means the cached snapshot reflects all known writes.
	StateFresh State = iota

	// StateDirty means a recompute is owed but not yet started.
	StateDirty

	// StateRecomputing means a recompute is in flight.
	StateRecomputing
)

func (s State) String() string {
	switch s {
	case StateDirty:
		return "DIRTY"
	case StateRecomputing:
		return "RECOMPUTING"
	default:
		return "FRESH"
	}
}

// topicState is guarded by Notifier.mu.
type topicState struct {
	state State

	// pendingDirty records a dirty signal that arrived mid-recompute.
	// It triggers exactly one follow-up recompute on completion.
	pendingDirty bool

	// lastSnapshot is retained past cache expiry for degraded serves.
	lastSnapshot *models.Snapshot

	// waiters are pull requests blocked on the next successful
	// recompute. Each channel is buffered so completion never blocks
	// on an abandoned waiter.
	waiters []chan *models.Snapshot
}

// Notifier tracks per-topic freshness and schedules recomputes.
type Notifier struct {
	computer Computer
	cache    *cache.TieredCache
	pub      Publisher
	cfg      config.NotifierConfig

	mu     sync.Mutex
	topics map[models.Topic]*topicState
	runCtx context.Context

	// sem caps concurrent recomputes across all topics.
	sem chan struct{}

	// now and afterFunc are injectable for scheduling tests.
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// New creates a notifier over the registered topic set. Every topic
// starts DIRTY so the run loop computes initial snapshots at startup.
func New(computer Computer, c *cache.TieredCache, pub Publisher, cfg config.NotifierConfig) *Notifier {
	topics := make(map[models.Topic]*topicState, len(models.AllTopics()))
	for _, t := range models.AllTopics() {
		topics[t] = &topicState{state: StateDirty}
	}

	return &Notifier{
		computer:  computer,
		cache:     c,
		pub:       pub,
		cfg:       cfg,
		topics:    topics,
		runCtx:    context.Background(),
		sem:       make(chan struct{}, cfg.MaxConcurrentRecomputes),
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// MarkDirty raises a dirty signal for a topic. Signals against a FRESH
// topic start a recompute; signals against a DIRTY topic coalesce into
// the one already owed; signals against a RECOMPUTING topic coalesce
// into a single follow-up recompute.
func (n *Notifier) MarkDirty(topic models.Topic, reason string) {
	n.mu.Lock()
	st, ok := n.topics[topic]
	if !ok {
		n.mu.Unlock()
		logging.Warn().Str("topic", string(topic)).Msg("Dirty signal for unknown topic dropped")
		return
	}

	sig := models.DirtySignal{
		ID:       uuid.NewString(),
		Topic:    topic,
		Reason:   reason,
		RaisedAt: n.now(),
	}
	metrics.DirtySignals.WithLabelValues(string(topic), reason).Inc()

	switch st.state {
	case StateRecomputing:
		st.pendingDirty = true
		n.mu.Unlock()
		logging.Debug().
			Str("signal_id", sig.ID).
			Str("topic", string(topic)).
			Str("reason", reason).
			Msg("Dirty signal coalesced into in-flight recompute")

	case StateDirty:
		n.mu.Unlock()
		logging.Debug().
			Str("signal_id", sig.ID).
			Str("topic", string(topic)).
			Str("reason", reason).
			Msg("Dirty signal coalesced, recompute already owed")

	default:
		st.state = StateDirty
		n.updateDirtyGaugeLocked()
		n.mu.Unlock()
		logging.Debug().
			Str("signal_id", sig.ID).
			Str("topic", string(topic)).
			Str("reason", reason).
			Msg("Topic marked dirty")
		n.startRecompute(topic)
	}
}

// startRecompute transitions a DIRTY topic to RECOMPUTING and launches
// the worker goroutine. A no-op for topics in any other state, which
// makes redundant calls after coalesced signals safe.
func (n *Notifier) startRecompute(topic models.Topic) {
	n.mu.Lock()
	st, ok := n.topics[topic]
	if !ok || st.state != StateDirty {
		n.mu.Unlock()
		return
	}
	st.state = StateRecomputing
	n.updateDirtyGaugeLocked()
	ctx := n.runCtx
	n.mu.Unlock()

	go n.recompute(ctx, topic)
}

// recompute runs one aggregation for the topic under the global
// concurrency cap, then publishes and resolves waiters on success or
// schedules a retry on failure. In-flight recomputes run on the
// notifier's own context, never a request context, so a disconnecting
// client cannot cancel work other consumers are waiting on.
func (n *Notifier) recompute(ctx context.Context, topic models.Topic) {
	select {
	case n.sem <- struct{}{}:
	case <-ctx.Done():
		n.mu.Lock()
		if st, ok := n.topics[topic]; ok && st.state == StateRecomputing {
			st.state = StateDirty
			n.updateDirtyGaugeLocked()
		}
		n.mu.Unlock()
		return
	}
	defer func() { <-n.sem }()

	start := n.now()
	snap, err := n.computer.Compute(ctx, topic)
	metrics.RecomputeDuration.WithLabelValues(string(topic)).Observe(time.Since(start).Seconds())

	if err != nil {
		n.recomputeFailed(topic, err)
		return
	}

	n.cache.Set(cache.TopicKey(topic), snap, snap.FreshnessClass)
	if n.pub != nil {
		n.pub.Publish(snap)
	}

	n.mu.Lock()
	st := n.topics[topic]
	st.lastSnapshot = snap
	waiters := st.waiters
	st.waiters = nil
	followUp := st.pendingDirty
	st.pendingDirty = false
	if followUp {
		st.state = StateDirty
	} else {
		st.state = StateFresh
	}
	n.updateDirtyGaugeLocked()
	n.mu.Unlock()

	for _, w := range waiters {
		select {
		case w <- snap:
		default:
		}
	}

	logging.Debug().
		Str("topic", string(topic)).
		Int64("source_rows", snap.SourceRowCount).
		Int("waiters", len(waiters)).
		Bool("follow_up", followUp).
		Dur("duration", time.Since(start)).
		Msg("Recompute complete")

	if followUp {
		n.startRecompute(topic)
	}
}

// recomputeFailed returns the topic to DIRTY, keeps the stale snapshot
// serveable, and schedules a bounded retry.
func (n *Notifier) recomputeFailed(topic models.Topic, err error) {
	metrics.RecomputeFailures.WithLabelValues(string(topic)).Inc()

	n.mu.Lock()
	st := n.topics[topic]
	st.state = StateDirty
	st.pendingDirty = false
	n.updateDirtyGaugeLocked()
	n.mu.Unlock()

	logging.Error().
		Err(err).
		Str("topic", string(topic)).
		Dur("retry_in", n.cfg.RetryInterval).
		Msg("Recompute failed, topic stays dirty")

	n.afterFunc(n.cfg.RetryInterval, func() { n.startRecompute(topic) })
}

// RunWithContext drives the refresh cadences and the initial snapshot
// population. Blocks until ctx is cancelled; designed for supervision.
func (n *Notifier) RunWithContext(ctx context.Context) error {
	n.mu.Lock()
	n.runCtx = ctx
	n.mu.Unlock()

	logging.Info().
		Int("topics", len(n.topics)).
		Int("max_concurrent", n.cfg.MaxConcurrentRecomputes).
		Msg("Change notifier started")

	// Every topic starts DIRTY; populate initial snapshots now.
	for _, t := range models.AllTopics() {
		n.startRecompute(t)
	}

	realtime := time.NewTicker(n.cadence(models.ClassRealtime))
	defer realtime.Stop()
	standard := time.NewTicker(n.cadence(models.ClassStandard))
	defer standard.Stop()
	historical := time.NewTicker(n.cadence(models.ClassHistorical))
	defer historical.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Change notifier stopping")
			return ctx.Err()
		case <-realtime.C:
			n.refreshClass(models.ClassRealtime)
		case <-standard.C:
			n.refreshClass(models.ClassStandard)
		case <-historical.C:
			n.refreshClass(models.ClassHistorical)
		}
	}
}

// cadence returns the refresh interval for a class, falling back to the
// class TTL so a fresh snapshot always exists before the old one expires.
func (n *Notifier) cadence(class models.FreshnessClass) time.Duration {
	var configured time.Duration
	switch class {
	case models.ClassRealtime:
		configured = n.cfg.RealtimeRefresh
	case models.ClassHistorical:
		configured = n.cfg.HistoricalRefresh
	default:
		configured = n.cfg.StandardRefresh
	}
	if configured > 0 {
		return configured
	}
	return class.TTL()
}

// refreshClass raises a cadence dirty signal for every topic in a class.
func (n *Notifier) refreshClass(class models.FreshnessClass) {
	for _, t := range models.AllTopics() {
		if models.ClassForTopic(t) == class {
			n.MarkDirty(t, "refresh_cadence")
		}
	}
}

// SnapshotForPull resolves one topic for a snapshot request.
//
// Resolution order:
//  1. Cache hit: return the fresh snapshot.
//  2. Cache miss with a prior snapshot inside the staleness ceiling
//     (TTL times the configured multiplier): return a degraded copy
//     immediately and refresh in the background.
//  3. Otherwise block, bounded by the miss-wait budget and the request
//     context, for the next successful recompute.
func (n *Notifier) SnapshotForPull(ctx context.Context, topic models.Topic) (*models.Snapshot, error) {
	if v, ok := n.cache.Get(cache.TopicKey(topic)); ok {
		if snap, ok := v.(*models.Snapshot); ok {
			return snap, nil
		}
	}

	n.mu.Lock()
	st, ok := n.topics[topic]
	if !ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	ceiling := models.ClassForTopic(topic).TTL() * time.Duration(n.cfg.StaleCeilingMultiplier)
	if last := st.lastSnapshot; last != nil && n.now().Sub(last.ComputedAt) <= ceiling {
		needStart := st.state == StateFresh
		if needStart {
			st.state = StateDirty
			n.updateDirtyGaugeLocked()
		}
		n.mu.Unlock()

		if needStart {
			n.startRecompute(topic)
		}
		logging.Debug().
			Str("topic", string(topic)).
			Time("computed_at", last.ComputedAt).
			Msg("Serving stale snapshot within ceiling, refresh queued")
		return last.DegradedCopy(), nil
	}

	// Nothing serveable. Register for the next recompute and make sure
	// one is coming.
	w := make(chan *models.Snapshot, 1)
	st.waiters = append(st.waiters, w)
	if st.state == StateFresh {
		st.state = StateDirty
		n.updateDirtyGaugeLocked()
	}
	n.mu.Unlock()
	n.startRecompute(topic)

	timer := time.NewTimer(n.cfg.MissWait)
	defer timer.Stop()

	select {
	case snap := <-w:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %q", ErrSnapshotUnavailable, topic)
	}
}

// TopicStates returns each topic's current state name, for the health
// endpoint.
func (n *Notifier) TopicStates() map[models.Topic]string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[models.Topic]string, len(n.topics))
	for t, st := range n.topics {
		out[t] = st.state.String()
	}
	return out
}

// updateDirtyGaugeLocked recounts non-fresh topics. Caller holds mu.
func (n *Notifier) updateDirtyGaugeLocked() {
	dirty := 0
	for _, st := range n.topics {
		if st.state != StateFresh {
			dirty++
		}
	}
	metrics.TopicsDirty.Set(float64(dirty))
}
