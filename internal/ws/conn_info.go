package ws

import "time"

// ConnInfo carries per-connection identity captured at handshake time. It is
// attached to every room membership so disconnect events can be attributed.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
