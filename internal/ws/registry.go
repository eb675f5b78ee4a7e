package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"resonate/chat-service/internal/models"
	"resonate/chat-service/internal/observability"
)

// Conn is the subset of a websocket connection the registry needs. Keeping it
// an interface lets the registry be exercised without real sockets and leaves
// room for an external pub/sub relay behind the same surface.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// TextMessage mirrors gorilla's text frame opcode so callers of the registry
// don't need the websocket package.
const TextMessage = 1

const messageEventsRoutingKey = "ws_events.threads"

// member pairs a connection with its metadata and a write mutex. Gorilla
// connections allow at most one concurrent writer, so every WriteMessage on
// a member goes through its mutex.
type member struct {
	info ConnInfo
	wmu  sync.Mutex
}

// Registry holds the per-thread broadcast groups. It is the only shared
// mutable state of the real-time layer; membership is derived entirely from
// active connections, so an empty group is simply dropped.
type Registry struct {
	groups map[int]map[Conn]*member
	mu     sync.RWMutex
}

// NewRegistry creates an empty broadcast registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[int]map[Conn]*member)}
}

// Join registers a connection as a member of the thread's broadcast group.
// Idempotent per connection.
func (r *Registry) Join(threadID int, conn Conn, info ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[threadID]; !ok {
		r.groups[threadID] = make(map[Conn]*member)
	}
	if _, ok := r.groups[threadID][conn]; !ok {
		r.groups[threadID][conn] = &member{info: info}
	}
}

// Leave removes a connection from the thread's group. Safe to call for a
// connection that never joined.
func (r *Registry) Leave(threadID int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.groups[threadID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.groups, threadID)
		}
	}
}

// Members reports the current size of a thread's group.
func (r *Registry) Members(threadID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[threadID])
}

// Publish delivers the message to every connection currently in the thread's
// group, serializing writes per member so concurrent publishes never write
// the same connection at once. Fire-and-forget: a failed write closes and
// removes that member, no retries, no acknowledgement. Durability comes from
// the message store alone.
func (r *Registry) Publish(threadID int, msg models.Message) {
	r.mu.RLock()
	members := make(map[Conn]*member, len(r.groups[threadID]))
	for conn, m := range r.groups[threadID] {
		members[conn] = m
	}
	r.mu.RUnlock()

	event := models.ThreadEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)
	for conn, m := range members {
		m.wmu.Lock()
		err := conn.WriteMessage(TextMessage, payload)
		m.wmu.Unlock()
		if err != nil {
			logrus.Warnf("websocket write error: %v", err)
			conn.Close()
			r.Leave(threadID, conn)
			observability.IncBroadcastDelivery("failed")
			r.publishConnError(threadID, m.info, err)
			continue
		}
		observability.IncBroadcastDelivery("delivered")
	}
}

func (r *Registry) publishConnError(threadID int, info ConnInfo, err error) {
	observability.IncWSEvent("ws_error")
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), messageEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: map[string]interface{}{
			"thread_id":   threadID,
			"conn_id":     info.ConnID,
			"user_id":     info.UserID,
			"ip":          info.IP,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
	}, headers)
}
