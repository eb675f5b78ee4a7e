package ws

import "time"

// ConnInfo carries identity and correlation data for one live connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
