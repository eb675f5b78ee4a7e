package models

import "time"

// Message represents a single message within a thread. Messages are
// immutable once stored.
type Message struct {
	ID        int       `db:"id" json:"id"`
	ThreadID  int       `db:"thread_id" json:"thread_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ThreadEvent is broadcasted through websockets.
type ThreadEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// InboundFrame is the payload a live connection sends to submit a message.
type InboundFrame struct {
	Message string `json:"message"`
}
