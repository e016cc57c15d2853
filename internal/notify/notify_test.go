// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDispatch_Webhook_Success(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(BackendWebhook, server.URL)
	event := Event{Event: "terminal_complete", Branch: "feat/a", Iteration: 5, Message: "done", Timestamp: time.Now()}
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if received.Branch != "feat/a" || received.Iteration != 5 {
		t.Errorf("received = %+v, want branch feat/a iteration 5", received)
	}
}

func TestDispatch_Webhook_NonTwoXXReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	d := NewDispatcher(BackendWebhook, server.URL)
	err := d.Dispatch(context.Background(), Event{Event: "x"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestDispatch_None_NoOp(t *testing.T) {
	d := NewDispatcher(BackendNone, "")
	if err := d.Dispatch(context.Background(), Event{}); err != nil {
		t.Fatalf("Dispatch(none): %v", err)
	}
}

func TestDispatch_UnknownBackend(t *testing.T) {
	d := NewDispatcher(Backend("carrier-pigeon"), "")
	if err := d.Dispatch(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
