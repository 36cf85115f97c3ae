package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"toproute/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// RunWSHandler bridges one run's event stream onto a WebSocket. Each broker
// event becomes one JSON frame {type, data}.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if _, err := s.Store.GetRun(r.Context(), runID); err != nil {
		status := http.StatusInternalServerError
		if err == store.ErrNotFound {
			status = http.StatusNotFound
		}
		writeProblem(w, status, "Run not found", err.Error(), r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ch := s.Broker.Subscribe(runID)
	defer s.Broker.Unsubscribe(runID, ch)

	done := make(chan struct{})
	// Drain the read side so pings get answered and closes are noticed.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	type frame struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(frame{Type: evt.Type, Data: evt.Data}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
