package models

import "time"

// Message is one immutable entry in a thread's history. The serial id defines
// the thread-local order; the timestamp is assigned by the database at append
// time.
type Message struct {
	ID        int       `db:"id" json:"id"`
	ThreadID  int       `db:"thread_id" json:"threadId"`
	SenderID  int       `db:"sender_id" json:"senderId"`
	Text      string    `db:"body" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// ClientEvent is what a websocket client sends after connecting.
// Supported types: "joinChat" (threadId) and "newMessage" (threadId, text).
type ClientEvent struct {
	Type     string `json:"type"`
	ThreadID int    `json:"threadId"`
	Text     string `json:"text,omitempty"`
}

// ThreadEvent is broadcast to every connection joined to a thread's room.
type ThreadEvent struct {
	Type     string   `json:"type"`
	ThreadID int      `json:"threadId"`
	Message  *Message `json:"message,omitempty"`
}
