// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

// Package broadcast fans computed snapshots out to streaming
// subscribers. Delivery is per-topic last-value-wins: a subscriber that
// cannot keep up accumulates at most one pending snapshot per topic,
// with older unsent values superseded rather than queued. Slow or dead
// connections therefore cost bounded memory and never stall the
// publisher or other subscribers.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/metrics"
	"github.com/dashfeed/dashfeed/internal/models"
)

// broadcastBuffer absorbs recompute bursts between fan-out iterations.
const broadcastBuffer = 256

// Hub routes snapshots from the notifier to live subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64

	broadcast chan *models.Snapshot
}

// NewHub creates a hub. RunWithContext must be started for snapshots
// to flow.
func NewHub() *Hub {
	return &Hub{
		subs:      make(map[uint64]*Subscription),
		broadcast: make(chan *models.Snapshot, broadcastBuffer),
	}
}

// Publish hands a snapshot to the fan-out loop. Non-blocking: if the
// buffer is full the snapshot is dropped, which is safe because every
// topic is republished on its refresh cadence.
func (h *Hub) Publish(snap *models.Snapshot) {
	select {
	case h.broadcast <- snap:
	default:
		logging.Warn().
			Str("topic", string(snap.Topic)).
			Msg("Broadcast buffer full, snapshot dropped")
	}
}

// Subscribe registers a subscription for the given topics. An empty
// topic list subscribes to every topic.
func (h *Hub) Subscribe(topics []models.Topic) *Subscription {
	if len(topics) == 0 {
		topics = models.AllTopics()
	}

	topicSet := make(map[models.Topic]struct{}, len(topics))
	for _, t := range topics {
		topicSet[t] = struct{}{}
	}

	sub := &Subscription{
		ID:      h.nextID.Add(1),
		hub:     h,
		topics:  topicSet,
		pending: make(map[models.Topic]*models.Snapshot),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(total))
	logging.Debug().
		Uint64("subscription_id", sub.ID).
		Int("topics", len(topicSet)).
		Int("total_subscribers", total).
		Msg("Subscription registered")

	return sub
}

// unsubscribe removes a subscription from the routing table. Called via
// Subscription.Close.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	_, existed := h.subs[id]
	delete(h.subs, id)
	total := len(h.subs)
	h.mu.Unlock()

	if existed {
		metrics.StreamSubscribers.Set(float64(total))
		logging.Debug().
			Uint64("subscription_id", id).
			Int("total_subscribers", total).
			Msg("Subscription removed")
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RunWithContext drains the broadcast channel and fans each snapshot
// out to matching subscriptions. Blocks until ctx is cancelled;
// designed for supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	logging.Info().Msg("Broadcast hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Msg("Broadcast hub stopping")
			return ctx.Err()
		case snap := <-h.broadcast:
			h.fanOut(snap)
		}
	}
}

// fanOut enqueues a snapshot on every matching subscription. Iteration
// is ordered by subscription ID so delivery is deterministic under test.
func (h *Hub) fanOut(snap *models.Snapshot) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	delivered := 0
	for _, id := range ids {
		sub := h.subs[id]
		if _, ok := sub.topics[snap.Topic]; !ok {
			continue
		}
		sub.enqueue(snap)
		delivered++
	}
	h.mu.RUnlock()

	metrics.SnapshotsPublished.WithLabelValues(string(snap.Topic)).Add(float64(delivered))
}

// closeAll closes every subscription on hub shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
	metrics.StreamSubscribers.Set(0)
}

// Subscription is one consumer's view of the snapshot stream.
type Subscription struct {
	ID     uint64
	hub    *Hub
	topics map[models.Topic]struct{}

	mu      sync.Mutex
	pending map[models.Topic]*models.Snapshot
	order   []models.Topic
	closed  bool

	signal chan struct{}
	done   chan struct{}
}

// enqueue stores a snapshot for delivery, superseding any unsent value
// for the same topic. A superseded snapshot keeps its queue position so
// topics are delivered in first-dirtied order.
func (s *Subscription) enqueue(snap *models.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, queued := s.pending[snap.Topic]; queued {
		metrics.SnapshotsSuperseded.Inc()
	} else {
		s.order = append(s.order, snap.Topic)
	}
	s.pending[snap.Topic] = snap
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot is available, the context is cancelled,
// or the subscription is closed. Returns nil on close.
func (s *Subscription) Next(ctx context.Context) (*models.Snapshot, error) {
	for {
		s.mu.Lock()
		if len(s.order) > 0 {
			topic := s.order[0]
			s.order = s.order[1:]
			snap := s.pending[topic]
			delete(s.pending, topic)
			s.mu.Unlock()
			return snap, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, nil
		}

		select {
		case <-s.signal:
		case <-s.done:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Seed enqueues an existing snapshot so a new subscriber sees the
// current value of each topic before live publishes arrive. Snapshots
// for topics outside the subscription are ignored.
func (s *Subscription) Seed(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	if _, ok := s.topics[snap.Topic]; !ok {
		return
	}
	s.enqueue(snap)
}

// Topics returns the subscribed topic set in stable order.
func (s *Subscription) Topics() []models.Topic {
	out := make([]models.Topic, 0, len(s.topics))
	for _, t := range models.AllTopics() {
		if _, ok := s.topics[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Close removes the subscription from the hub and wakes any blocked
// Next call. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
