// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package broadcast

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/models"
)

const maxMessageSize = 4 * 1024 // inbound frames are control-only

// Stream message types.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeHello    = "hello"
)

// Message is the wire envelope for stream frames.
type Message struct {
	Type     string           `json:"type"`
	Topics   []models.Topic   `json:"topics,omitempty"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// Client pumps a subscription's snapshots over one websocket connection.
type Client struct {
	conn *websocket.Conn
	sub  *Subscription
	cfg  config.StreamConfig
}

// NewClient wraps an upgraded connection and its subscription.
func NewClient(conn *websocket.Conn, sub *Subscription, cfg config.StreamConfig) *Client {
	return &Client{conn: conn, sub: sub, cfg: cfg}
}

// Serve runs the read and write pumps until the connection dies, the
// context is cancelled, or the write failure limit is reached. Always
// unregisters the subscription on return, so a dead connection stops
// consuming hub resources immediately.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.sub.Close()
	defer func() { _ = c.conn.Close() }()

	go c.readPump(cancel)
	c.writePump(ctx)
}

// readPump discards inbound frames and refreshes the read deadline on
// pongs. Its only job is liveness: a peer that stops responding within
// the idle timeout gets its connection torn down.
func (c *Client) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("subscription_id", c.sub.ID).Msg("unexpected websocket close")
			}
			return
		}
	}
}

// writePump sends the hello frame, then snapshots as the subscription
// yields them, interleaved with heartbeat pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := c.writeMessage(Message{Type: MessageTypeHello, Topics: c.sub.Topics()}); err != nil {
		logging.Debug().Err(err).Uint64("subscription_id", c.sub.ID).Msg("hello frame failed")
		return
	}

	snapshots := make(chan *models.Snapshot)
	go func() {
		defer close(snapshots)
		for {
			snap, err := c.sub.Next(ctx)
			if err != nil || snap == nil {
				return
			}
			select {
			case snapshots <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(c.cfg.WriteWait))
			return

		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := c.writeMessage(Message{Type: MessageTypeSnapshot, Snapshot: snap}); err != nil {
				failures++
				logging.Debug().
					Err(err).
					Uint64("subscription_id", c.sub.ID).
					Int("consecutive_failures", failures).
					Msg("snapshot write failed")
				if failures >= c.cfg.WriteFailureLimit {
					return
				}
				continue
			}
			failures = 0

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage marshals and sends one frame under the write deadline.
func (c *Client) writeMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
