// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// mockHTTPServer blocks in ListenAndServe until Shutdown is called,
// mirroring *http.Server's contract.
type mockHTTPServer struct {
	listenErr   error
	shutdownErr error

	done         chan struct{}
	shutdownSeen atomic.Bool
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{done: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.done
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdownSeen.Store(true)
	close(m.done)
	return m.shutdownErr
}

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if !srv.shutdownSeen.Load() {
		t.Error("cancel must trigger graceful Shutdown")
	}
}

func TestHTTPServerServicePropagatesListenFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("listen tcp: address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve = %v, want wrapped listen error", err)
	}
}

func TestHTTPServerServicePropagatesShutdownFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.shutdownErr = errors.New("shutdown deadline exceeded")
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil || !errors.Is(err, srv.shutdownErr) {
			t.Errorf("Serve = %v, want wrapped shutdown error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestHTTPServerServiceString(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(), 0)
	if svc.String() != "http-server" {
		t.Errorf("String = %q", svc.String())
	}
}

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) RunWithContext(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerServiceServesUntilCancel(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	svc := NewRunnerService("change-notifier", runner)

	if svc.String() != "change-notifier" {
		t.Errorf("String = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
