package models

import "time"

// ThreadStatus tracks where a conversation stands. Transitions are driven by
// the listing workflow, never by the chat service itself.
type ThreadStatus string

const (
	StatusOpen   ThreadStatus = "open"
	StatusAgreed ThreadStatus = "agreed"
	StatusClosed ThreadStatus = "closed"
)

// Thread is a two-party conversation about one listing. The participant pair
// is stored normalized (lo < hi) so the pair+listing uniqueness constraint is
// order-insensitive. Messages live in their own table keyed by thread id.
type Thread struct {
	ID         int          `db:"id" json:"id"`
	ListingRef int          `db:"listing_ref" json:"listingRef"`
	UserLo     int          `db:"user_lo" json:"-"`
	UserHi     int          `db:"user_hi" json:"-"`
	Status     ThreadStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updatedAt"`
}

// Participants returns the two participant ids in stored order.
func (t Thread) Participants() [2]int {
	return [2]int{t.UserLo, t.UserHi}
}

// HasParticipant reports whether userID belongs to the thread.
func (t Thread) HasParticipant(userID int) bool {
	return t.UserLo == userID || t.UserHi == userID
}

// Counterparty returns the other participant for userID. Callers must check
// membership first.
func (t Thread) Counterparty(userID int) int {
	if t.UserLo == userID {
		return t.UserHi
	}
	return t.UserLo
}

// ThreadSummary is the per-user view used by the thread list endpoint.
type ThreadSummary struct {
	ThreadID       int          `db:"id" json:"threadId"`
	ListingRef     int          `db:"listing_ref" json:"listingRef"`
	CounterpartyID int          `json:"counterpartyId"`
	Status         ThreadStatus `db:"status" json:"status"`
	LastMessage    *string      `db:"last_message" json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time   `db:"last_message_at" json:"lastMessageAt,omitempty"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}
