package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"roadplan/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is one frame sent to plan event subscribers.
type wsMessage struct {
	Type   string         `json:"type"`
	PlanID string         `json:"planId"`
	Data   map[string]any `json:"data,omitempty"`
}

const (
	wsSnapshot   = "plan.snapshot"
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
)

func terminal(status string) bool {
	return status != model.PlanPending && status != model.PlanRunning
}

// planEventsWS streams a plan's lifecycle events until it finishes or the
// client goes away. The first frame is a snapshot of the stored plan.
func (s *Server) planEventsWS(w http.ResponseWriter, r *http.Request, tenant, id string) {
	// Subscribe before reading the plan so a run that finishes in between is not missed.
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	plan, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		s.storeProblem(w, r, "Plan not found", err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	write := func(m wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(m)
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "plan finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	snap := map[string]any{"status": plan.Status, "improvementPct": plan.ImprovementPct}
	if plan.Optimized != nil {
		snap["totalTime"] = plan.Optimized.TotalTime
	}
	if err := write(wsMessage{Type: wsSnapshot, PlanID: id, Data: snap}); err != nil {
		return
	}
	if terminal(plan.Status) {
		closeNormal()
		return
	}

	// Read loop only notices the client closing; we never expect data frames.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(wsMessage{Type: evt.Type, PlanID: id, Data: evt.Data}); err != nil {
				return
			}
			if evt.Type == EventCompleted || evt.Type == EventFailed {
				closeNormal()
				return
			}
		}
	}
}
