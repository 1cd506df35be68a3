package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nexus-chat/internal/models"
	"nexus-chat/internal/observability"
)

// Hub maintains the process-local room table: one room per thread id, holding
// every live connection joined to it. State starts empty and is dropped with
// the process; clients rejoin after reconnecting. Fanning out across multiple
// server instances requires an external relay.
type Hub struct {
	rooms    map[int]map[*websocket.Conn]bool
	connInfo map[int]map[*websocket.Conn]ConnInfo
	// writeMu serializes frame writes per connection. A connection joined to
	// several rooms can receive broadcasts from concurrent appends, and
	// gorilla/websocket permits only one concurrent writer per connection.
	writeMu map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[int]map[*websocket.Conn]bool),
		connInfo: make(map[int]map[*websocket.Conn]ConnInfo),
		writeMu:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Join registers a websocket connection in a thread's room. A connection may
// be joined to any number of rooms.
func (h *Hub) Join(threadID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[threadID]; !ok {
		h.rooms[threadID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[threadID][conn] = true
	if _, ok := h.connInfo[threadID]; !ok {
		h.connInfo[threadID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[threadID][conn] = info
	if _, ok := h.writeMu[conn]; !ok {
		h.writeMu[conn] = &sync.Mutex{}
	}
}

// Leave removes a connection from one room.
func (h *Hub) Leave(threadID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(threadID, conn)
}

// RemoveConnection removes a connection from every room it joined. Called on
// disconnect; no persisted state is touched.
func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for threadID, conns := range h.rooms {
		if conns[conn] {
			h.removeLocked(threadID, conn)
		}
	}
}

func (h *Hub) removeLocked(threadID int, conn *websocket.Conn) {
	if conns, ok := h.rooms[threadID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, threadID)
		}
	}
	if infos, ok := h.connInfo[threadID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, threadID)
		}
	}
	for _, conns := range h.rooms {
		if conns[conn] {
			return
		}
	}
	delete(h.writeMu, conn)
}

// RoomSize reports how many connections are joined to a thread's room.
func (h *Hub) RoomSize(threadID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[threadID])
}

// BroadcastMessage delivers a persisted message to every connection in the
// thread's room, the sender's own connections included so other devices see
// the confirmed message. A write failure drops only the failing connection.
func (h *Hub) BroadcastMessage(threadID int, msg models.Message) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[threadID]))
	locks := make([]*sync.Mutex, 0, len(h.rooms[threadID]))
	for conn := range h.rooms[threadID] {
		conns = append(conns, conn)
		locks = append(locks, h.writeMu[conn])
	}
	h.mu.RUnlock()

	event := models.ThreadEvent{Type: "messageReceived", ThreadID: threadID, Message: &msg}
	payload, _ := json.Marshal(event)
	for i, conn := range conns {
		if err := writeConn(conn, locks[i], payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.publishWriteError(threadID, conn, err)
			h.RemoveConnection(conn)
		}
	}
}

func writeConn(conn *websocket.Conn, lock *sync.Mutex, payload []byte) error {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	lock.Lock()
	defer lock.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) publishWriteError(threadID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(threadID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"thread_id":   threadID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.threads", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(threadID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[threadID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
