package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"toproute/internal/model"
)

func TestRunWSBridge(t *testing.T) {
	s := newTestServer()
	run, err := s.Store.CreateRun(context.Background(), model.Run{InstanceID: "i1"})
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(http.HandlerFunc(s.RunByIDHandler))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + run.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Let the handler subscribe before publishing.
	time.Sleep(100 * time.Millisecond)
	s.Broker.Publish(run.ID, SSEEvent{Type: "run.completed", Data: map[string]any{"runId": run.ID}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "run.completed" || frame.Data["runId"] != run.ID {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestRunWSUnknownRun(t *testing.T) {
	s := newTestServer()
	ts := httptest.NewServer(http.HandlerFunc(s.RunByIDHandler))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown run")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}
