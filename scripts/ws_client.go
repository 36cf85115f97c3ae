// Package main runs a demo WebSocket client: it creates a small instance,
// starts a solve, and prints the run events as they stream in.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const demoInstance = `2 60 6
0 0 0
10 5 20
20 10 30
15 20 25
5 15 10
25 5 15
10 25 20
30 0 0
`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create an instance from raw text
	instBody, _ := json.Marshal(map[string]any{"name": "ws-demo", "text": demoInstance})
	resp, err := http.Post(base+"/v1/instances", "application/json", bytes.NewReader(instBody))
	if err != nil {
		log.Fatal(err)
	}
	var inst struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Instance ID: %s", inst.ID)

	// Start a solve
	solveBody, _ := json.Marshal(map[string]any{"instanceId": inst.ID, "iterations": 2000, "seed": 7})
	resp, err = http.Post(base+"/v1/solve", "application/json", bytes.NewReader(solveBody))
	if err != nil {
		log.Fatal(err)
	}
	var run struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Run ID: %s", run.ID)

	// Connect the event bridge
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			pretty, _ := json.Marshal(m.Data)
			log.Printf("WS <- %s: %s", m.Type, pretty)
			if m.Type == "run.completed" || m.Type == "run.failed" {
				return
			}
		}
	}()

	select {
	case <-time.After(30 * time.Second):
		log.Printf("timed out waiting for run events")
	case <-done:
	}
}
