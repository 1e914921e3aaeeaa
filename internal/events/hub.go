// Package events broadcasts task lifecycle events to connected websocket
// dashboards. Delivery is best-effort: a slow or dead connection is
// dropped, never waited on.
package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voltlink-io/onboardflow/internal/models"
)

// StatusChangedEvent is pushed to every connected dashboard after a
// successful transition.
type StatusChangedEvent struct {
	Type       string            `json:"type"`
	TaskID     string            `json:"taskId"`
	TaskNo     string            `json:"taskNo"`
	ClientName string            `json:"clientName"`
	From       models.TaskStatus `json:"from"`
	To         models.TaskStatus `json:"to"`
	Timestamp  time.Time         `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins in development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks connected dashboard sockets
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{conns: map[*websocket.Conn]bool{}}
}

// HandleWS upgrades an HTTP request and registers the connection
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ Websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Reader loop only exists to detect close
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// PublishStatusChanged pushes a transition event to every connection
func (h *Hub) PublishStatusChanged(task *models.OnboardingTask, from, to models.TaskStatus) {
	payload, err := json.Marshal(StatusChangedEvent{
		Type:       "task.status_changed",
		TaskID:     task.ID,
		TaskNo:     task.TaskNo,
		ClientName: task.ClientName,
		From:       from,
		To:         to,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode status event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.conns, conn)
}
