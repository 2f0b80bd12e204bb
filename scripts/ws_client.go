// Package main runs a demo WebSocket client for plan events.
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

type wsMessage struct {
	Type   string          `json:"type"`
	PlanID string          `json:"planId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const cityPlan = `{
  "name": "ws-demo",
  "async": true,
  "params": {"maxIterations": 5000, "coolingRate": 0.999, "traceEvery": 250},
  "edges": [
    {"from":"A","to":"B","time":5,"capacity":2}, {"from":"B","to":"A","time":5,"capacity":2},
    {"from":"A","to":"C","time":10,"capacity":3}, {"from":"C","to":"A","time":10,"capacity":3},
    {"from":"B","to":"D","time":15,"capacity":2}, {"from":"D","to":"B","time":15,"capacity":2},
    {"from":"C","to":"D","time":20,"capacity":1}, {"from":"D","to":"C","time":20,"capacity":1}
  ],
  "vehicles": [
    {"id":"v1","start":"A","end":"D","timeWindow":{"min":0,"max":30}},
    {"id":"v2","start":"B","end":"C","timeWindow":{"min":0,"max":25}},
    {"id":"v3","start":"C","end":"A","timeWindow":{"min":0,"max":35}}
  ]
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Submit an async plan
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader([]byte(cityPlan)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: unexpected status %s", resp.Status)
	}
	var plan struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan ID: %s", plan.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/" + plan.ID + "/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("stream closed: plan finished")
				} else {
					log.Printf("read: %v", err)
				}
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Data))
		}
	}()

	select {
	case <-time.After(30 * time.Second):
		log.Printf("timed out waiting for plan to finish")
	case <-done:
	}
}
