// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chime-foundation/chime/lib/clock"
	"github.com/chime-foundation/chime/lib/secret"
	"github.com/chime-foundation/chime/lib/testutil"
	"github.com/chime-foundation/chime/messaging"
)

func testSession(t *testing.T, server *httptest.Server) *messaging.Session {
	t.Helper()
	client, err := messaging.NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	token, err := secret.NewFromBytes([]byte("syt_test"))
	if err != nil {
		t.Fatalf("creating token: %v", err)
	}
	session, err := client.SessionFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// syncServer answers whoami plus /sync with the given per-call
// handler.
func syncServer(t *testing.T, onSync func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/_matrix/client/v3/account/whoami":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"user_id": "@chime:test.local"})
		case "/_matrix/client/v3/sync":
			onSync(w, r)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestInitialSync(t *testing.T) {
	server := syncServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "" {
			t.Error("initial sync must not send a since token")
		}
		if r.URL.Query().Get("filter") == "" {
			t.Error("filter missing from initial sync")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"next_batch": "s1"})
	})

	session := testSession(t, server)
	since, response, err := InitialSync(context.Background(), session, `{"room":{}}`)
	if err != nil {
		t.Fatalf("InitialSync failed: %v", err)
	}
	if since != "s1" {
		t.Errorf("unexpected since token: %s", since)
	}
	if response == nil {
		t.Fatal("InitialSync returned nil response")
	}
}

func TestRunSyncLoopFeedsSinceToken(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	server := syncServer(t, func(w http.ResponseWriter, r *http.Request) {
		call := calls.Add(1)
		switch call {
		case 1:
			if got := r.URL.Query().Get("since"); got != "s0" {
				t.Errorf("first poll since = %q, want s0", got)
			}
		case 2:
			if got := r.URL.Query().Get("since"); got != "s1" {
				t.Errorf("second poll since = %q, want s1", got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"next_batch": "s" + string(rune('0'+call))})
	})

	session := testSession(t, server)

	// Cancel from inside the handler once the second response has been
	// delivered: cancelling earlier (from the HTTP handler) would abort
	// the in-flight body read and the response would never reach us.
	var handled atomic.Int32
	handler := func(context.Context, *messaging.SyncResponse) {
		if handled.Add(1) == 2 {
			cancel()
		}
	}

	RunSyncLoop(ctx, session, SyncConfig{Timeout: 1}, "s0", handler, clock.Real(), slog.New(slog.DiscardHandler))
	if handled.Load() != 2 {
		t.Errorf("handler called %d times, want 2", handled.Load())
	}
}

func TestRunSyncLoopRetriesOnError(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	server := syncServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"next_batch": "s1"})
	})

	session := testSession(t, server)

	// The handler cancels once the post-retry response arrives; the
	// loop exits at the top of the next iteration.
	var handled atomic.Int32
	handler := func(context.Context, *messaging.SyncResponse) {
		handled.Add(1)
		cancel()
	}

	// Real clock with the 1s initial backoff is fine here: the loop
	// retries exactly once before the handler cancels.
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{Timeout: 1, MaxBackoff: time.Second}, "", handler, clock.Real(), slog.New(slog.DiscardHandler))
	}()

	testutil.RequireClosed(t, done, 10*time.Second, "sync loop did not recover from the transient error")
	if handled.Load() != 1 {
		t.Errorf("handler called %d times, want 1", handled.Load())
	}
}
