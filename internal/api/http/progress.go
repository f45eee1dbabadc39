package apihttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"audiostream/metasearch/internal/domain"
)

const (
	progressKeepAlive = 15 * time.Second
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) progressChannel(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "progress updates are not enabled")
		return "", false
	}
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" || len(channel) > maxChannelLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "channel is required")
		return "", false
	}
	return channel, true
}

// handleProgressStream relays one channel's progress events as server-sent
// events until the client goes away.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	channel, ok := s.progressChannel(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	events, unsubscribe := s.progress.Subscribe(channel)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "ready", map[string]any{"channel": channel}); err != nil {
		return // Client disconnected
	}

	ticker := time.NewTicker(progressKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
				return
			}
			if err := writeSSEEvent(w, flusher, "progress", event); err != nil {
				return
			}
		}
	}
}

// handleProgressSocket delivers the same events over a WebSocket.
func (s *Server) handleProgressSocket(w http.ResponseWriter, r *http.Request) {
	channel, ok := s.progressChannel(w, r)
	if !ok {
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	events, unsubscribe := s.progress.Subscribe(channel)
	closed := make(chan struct{})
	go readUntilClosed(conn, closed)
	s.logger.Debug("ws progress client connected", slog.String("channel", channel))

	writeProgressSocket(conn, events, closed)
	unsubscribe()
	s.logger.Debug("ws progress client disconnected", slog.String("channel", channel))
}

func writeProgressSocket(conn *websocket.Conn, events <-chan domain.ProgressEvent, closed <-chan struct{}) {
	ticker := time.NewTicker(progressKeepAlive)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "progress closed"))
				return
			}
			payload, err := json.Marshal(wsMessage{Type: "progress", Data: event})
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and signals closed when the peer goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
