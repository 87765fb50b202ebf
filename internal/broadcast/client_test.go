// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/models"
)

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		WriteWait:         time.Second,
		IdleTimeout:       5 * time.Second,
		HeartbeatInterval: time.Second,
		WriteFailureLimit: 2,
	}
}

// streamServer runs a hub and an HTTP handler that serves one websocket
// subscription per connection.
func streamServer(t *testing.T, topics []models.Topic) (*Hub, *httptest.Server) {
	t.Helper()

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.RunWithContext(ctx) }()
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := h.Subscribe(topics)
		NewClient(conn, sub, testStreamConfig()).Serve(r.Context())
	}))
	t.Cleanup(srv.Close)

	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClientReceivesHelloThenSnapshots(t *testing.T) {
	topics := []models.Topic{models.TopicConversion}
	h, srv := streamServer(t, topics)
	conn := dial(t, srv)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != MessageTypeHello {
		t.Fatalf("first frame type = %q, want hello", hello.Type)
	}
	if len(hello.Topics) != 1 || hello.Topics[0] != models.TopicConversion {
		t.Errorf("hello topics = %v", hello.Topics)
	}

	// The hello frame means the subscription is registered.
	snap := snapshotAt(models.TopicConversion, time.Now().UTC())
	h.Publish(snap)

	var frame Message
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if frame.Type != MessageTypeSnapshot {
		t.Fatalf("frame type = %q, want snapshot", frame.Type)
	}
	if frame.Snapshot == nil || frame.Snapshot.Topic != models.TopicConversion {
		t.Errorf("snapshot frame = %+v", frame.Snapshot)
	}
	if !frame.Snapshot.ComputedAt.Equal(snap.ComputedAt) {
		t.Errorf("computed_at = %v, want %v", frame.Snapshot.ComputedAt, snap.ComputedAt)
	}
}

func TestClientFiltersUnsubscribedTopics(t *testing.T) {
	h, srv := streamServer(t, []models.Topic{models.TopicRevenueGrowth})
	conn := dial(t, srv)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}

	h.Publish(snapshotAt(models.TopicConversion, time.Now()))
	h.Publish(snapshotAt(models.TopicRevenueGrowth, time.Now()))

	var frame Message
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Snapshot.Topic != models.TopicRevenueGrowth {
		t.Errorf("received %s, want only the subscribed topic", frame.Snapshot.Topic)
	}
}

func TestDisconnectRemovesSubscription(t *testing.T) {
	h, srv := streamServer(t, nil)
	conn := dial(t, srv)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello Message
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if h.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", h.SubscriberCount())
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.SubscriberCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dead connection's subscription was not removed")
}
