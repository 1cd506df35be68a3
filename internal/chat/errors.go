package chat

import "errors"

var (
	// ErrSelfThread rejects resolving a thread where both sides are the
	// same user.
	ErrSelfThread = errors.New("cannot start a thread with yourself")

	// ErrNotParticipant rejects any read, join or send by a user outside
	// the thread's pair.
	ErrNotParticipant = errors.New("not a thread participant")

	ErrEmptyText   = errors.New("message text is empty")
	ErrTextTooLong = errors.New("message text exceeds maximum length")
)
