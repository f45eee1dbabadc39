package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"audiostream/metasearch/internal/domain"
	"audiostream/metasearch/internal/progress"
)

// scriptedHub replays a fixed list of events and then closes the stream.
type scriptedHub struct {
	channel string
	events  []domain.ProgressEvent
	stopped bool
}

func (h *scriptedHub) Subscribe(channel string) (<-chan domain.ProgressEvent, func()) {
	h.channel = channel
	out := make(chan domain.ProgressEvent, len(h.events))
	for _, event := range h.events {
		out <- event
	}
	close(out)
	return out, func() { h.stopped = true }
}

func TestProgressStreamRelaysEvents(t *testing.T) {
	hub := &scriptedHub{events: []domain.ProgressEvent{
		{Message: "Searching Amazon for: dune", Type: "interactive"},
		{Message: "Found: Dune", ASIN: "B002V1OF70", Type: "interactive"},
	}}
	rec := serve(t, NewServer(nil, WithProgress(hub)).Handler(), http.MethodGet, "/search/progress?channel=abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: ready", "event: progress", `"asin":"B002V1OF70"`, "event: done"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "Searching Amazon") > strings.Index(body, "Found: Dune") {
		t.Fatalf("events out of order:\n%s", body)
	}
	if hub.channel != "abc" || !hub.stopped {
		t.Fatalf("expected subscription on abc to be released, got %+v", hub)
	}
}

func TestProgressStreamValidation(t *testing.T) {
	if rec := serve(t, NewServer(nil).Handler(), http.MethodGet, "/search/progress?channel=abc", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a hub, got %d", rec.Code)
	}
	handler := NewServer(nil, WithProgress(&scriptedHub{})).Handler()
	if rec := serve(t, handler, http.MethodGet, "/search/progress", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without channel, got %d", rec.Code)
	}
	if rec := serve(t, handler, http.MethodPost, "/search/progress?channel=abc", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestProgressSocketDeliversEvents(t *testing.T) {
	hub := progress.NewHub()
	defer hub.Close()
	srv := httptest.NewServer(NewServer(nil, WithProgress(hub)).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress?channel=room-1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("room-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("socket never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish("room-1", domain.ProgressEvent{Message: "Enriching ASIN: B002V1OF70", ASIN: "B002V1OF70", Type: "interactive"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg struct {
		Type string               `json:"type"`
		Data domain.ProgressEvent `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode ws message %s: %v", data, err)
	}
	if msg.Type != "progress" || msg.Data.ASIN != "B002V1OF70" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("room-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
