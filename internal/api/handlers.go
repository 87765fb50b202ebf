// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dashfeed/dashfeed/internal/broadcast"
	"github.com/dashfeed/dashfeed/internal/cache"
	"github.com/dashfeed/dashfeed/internal/config"
	"github.com/dashfeed/dashfeed/internal/logging"
	"github.com/dashfeed/dashfeed/internal/models"
	"github.com/dashfeed/dashfeed/internal/notifier"
)

// SnapshotSource resolves pull requests and accepts dirty signals.
// Satisfied by notifier.Notifier.
type SnapshotSource interface {
	SnapshotForPull(ctx context.Context, topic models.Topic) (*models.Snapshot, error)
	MarkDirty(topic models.Topic, reason string)
	TopicStates() map[models.Topic]string
}

// HealthChecker probes store liveness. Satisfied by store.Store.
type HealthChecker interface {
	HealthCheck(ctx context.Context) models.HealthState
}

// Handler serves all HTTP endpoints.
type Handler struct {
	source   SnapshotSource
	hub      *broadcast.Hub
	cache    *cache.TieredCache
	health   HealthChecker
	cfg      *config.Config
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewHandler creates the endpoint handler.
func NewHandler(source SnapshotSource, hub *broadcast.Hub, c *cache.TieredCache, health HealthChecker, cfg *config.Config) *Handler {
	return &Handler{
		source:   source,
		hub:      hub,
		cache:    c,
		health:   health,
		cfg:      cfg,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The stream carries derived, non-sensitive aggregates and
			// the deployment fronts it with its own origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// parseTopics resolves the topics query parameter. Empty means all
// topics; any unknown name fails the whole request.
func parseTopics(raw string) ([]models.Topic, error) {
	if strings.TrimSpace(raw) == "" {
		return models.AllTopics(), nil
	}

	var topics []models.Topic
	for _, part := range strings.Split(raw, ",") {
		t, err := models.ParseTopic(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// topicResult carries one topic's resolution for the snapshots endpoint.
type topicResult struct {
	topic models.Topic
	snap  *models.Snapshot
	err   error
}

// GetSnapshots handles GET /api/v1/snapshots?topics=a,b.
//
// Topics resolve concurrently so one cold topic's miss-wait does not
// stack onto the others. The response is best-effort partial: resolved
// topics return snapshots, failed ones return per-topic errors, and
// only a fully failed request gets a 503.
func (h *Handler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	topics, err := parseTopics(r.URL.Query().Get("topics"))
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	results := make([]topicResult, len(topics))
	var wg sync.WaitGroup
	for i, topic := range topics {
		wg.Add(1)
		go func(i int, topic models.Topic) {
			defer wg.Done()
			snap, err := h.source.SnapshotForPull(r.Context(), topic)
			results[i] = topicResult{topic: topic, snap: snap, err: err}
		}(i, topic)
	}
	wg.Wait()

	snapshots := make(map[string]*models.Snapshot)
	errs := make(map[string]string)
	for _, res := range results {
		if res.err != nil {
			errs[string(res.topic)] = res.err.Error()
			continue
		}
		snapshots[string(res.topic)] = res.snap
	}

	if len(snapshots) == 0 {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeSnapshotUnavailable,
			"no requested topic could be resolved", errs)
		return
	}

	data := map[string]interface{}{
		"snapshots": snapshots,
	}
	if len(errs) > 0 {
		data["errors"] = errs
	}
	rw.Success(data)
}

// GetSnapshot handles GET /api/v1/snapshots/{topic}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	topic, err := models.ParseTopic(topicParam(r))
	if err != nil {
		rw.NotFound(err.Error())
		return
	}

	snap, err := h.source.SnapshotForPull(r.Context(), topic)
	if err != nil {
		switch {
		case errors.Is(err, notifier.ErrSnapshotUnavailable):
			rw.Error(http.StatusServiceUnavailable, ErrCodeSnapshotUnavailable, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			rw.Error(http.StatusServiceUnavailable, ErrCodeSnapshotUnavailable, "request cancelled before snapshot resolved")
		default:
			rw.InternalError(err.Error())
		}
		return
	}

	rw.Success(snap)
}

// Stream handles GET /api/v1/stream: upgrades to a websocket and pumps
// subscribed snapshots until the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r.URL.Query().Get("topics"))
	if err != nil {
		NewResponseWriter(w, r).BadRequest(err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe(topics)

	// Replay the latest cached snapshot per topic so the client renders
	// immediately instead of waiting for the next recompute.
	for _, t := range topics {
		if v, ok := h.cache.Get(cache.TopicKey(t)); ok {
			if snap, ok := v.(*models.Snapshot); ok {
				sub.Seed(snap)
			}
		}
	}

	logging.Ctx(r.Context()).Info().
		Uint64("subscription_id", sub.ID).
		Int("topics", len(topics)).
		Str("remote", r.RemoteAddr).
		Msg("Stream client connected")

	broadcast.NewClient(conn, sub, h.cfg.Stream).Serve(r.Context())

	logging.Ctx(r.Context()).Info().
		Uint64("subscription_id", sub.ID).
		Msg("Stream client disconnected")
}

// InvalidateRequest is the body of the operator cache-bust endpoint.
type InvalidateRequest struct {
	// Topics to invalidate; empty means every topic.
	Topics []string `json:"topics" validate:"omitempty,dive,min=1"`

	// Reason is recorded on the dirty signals this request raises.
	Reason string `json:"reason" validate:"required,min=1,max=200"`
}

// Invalidate handles POST /api/v1/admin/invalidate: drops the cached
// values for the named topics and raises dirty signals so they
// recompute. Rate limited per IP at the router.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("invalid invalidate request", err.Error())
		return
	}

	topics := models.AllTopics()
	if len(req.Topics) > 0 {
		topics = topics[:0]
		for _, raw := range req.Topics {
			t, err := models.ParseTopic(raw)
			if err != nil {
				rw.BadRequest(err.Error())
				return
			}
			topics = append(topics, t)
		}
	}

	removed := 0
	for _, t := range topics {
		removed += h.cache.InvalidatePattern(string(t))
		h.source.MarkDirty(t, "manual_invalidate")
	}

	logging.Ctx(r.Context()).Info().
		Int("topics", len(topics)).
		Int("entries_removed", removed).
		Str("reason", req.Reason).
		Msg("Operator cache invalidation")

	rw.Success(map[string]interface{}{
		"topics_invalidated": len(topics),
		"entries_removed":    removed,
	})
}

// Health handles GET /health. Reports store liveness, per-topic
// freshness states, cache counters, and the subscriber count; returns
// 503 when the store probe is failing so load balancers can react.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	state := h.health.HealthCheck(r.Context())
	stats := h.cache.GetStats()

	data := map[string]interface{}{
		"store": state,
		"topics": h.source.TopicStates(),
		"cache": map[string]interface{}{
			"hits":         stats.Hits,
			"misses":       stats.Misses,
			"evictions":    stats.Evictions,
			"entries":      stats.TotalKeys,
			"hit_rate_pct": h.cache.HitRate(),
		},
		"stream_subscribers": h.hub.SubscriberCount(),
	}

	if !state.Healthy {
		rw.SuccessWithStatus(http.StatusServiceUnavailable, data)
		return
	}
	rw.Success(data)
}
