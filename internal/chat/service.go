package chat

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"nexus-chat/internal/models"
	"nexus-chat/internal/repositories"
)

// DefaultMaxMessageLen matches the client's input cap.
const DefaultMaxMessageLen = 500

// Broadcaster fans a persisted message out to the thread's room. Delivery is
// best-effort; persistence is the durability boundary.
type Broadcaster interface {
	BroadcastMessage(threadID int, msg models.Message)
}

// Service is the single choke point for thread resolution and message
// ingestion. Both the REST handlers and the websocket gateway call into it,
// so neither path can skip validation or persistence.
type Service struct {
	threads     repositories.ThreadRepository
	messages    repositories.MessageRepository
	broadcaster Broadcaster
	maxTextLen  int

	mu          sync.Mutex
	threadLocks map[int]*threadLock
}

// threadLock is refcounted so the lock table only holds threads with an
// append in flight.
type threadLock struct {
	mu   sync.Mutex
	refs int
}

// NewService builds a Service. broadcaster may be nil when no realtime
// gateway is attached.
func NewService(threads repositories.ThreadRepository, messages repositories.MessageRepository, broadcaster Broadcaster, maxTextLen int) *Service {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxMessageLen
	}
	return &Service{
		threads:     threads,
		messages:    messages,
		broadcaster: broadcaster,
		maxTextLen:  maxTextLen,
		threadLocks: make(map[int]*threadLock),
	}
}

// AssertParticipant fails with ErrNotParticipant unless userID belongs to the
// thread.
func AssertParticipant(thread models.Thread, userID int) error {
	if !thread.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// ResolveOrCreate finds or creates the thread for an unordered user pair and
// a listing. The second return value reports whether a new thread was
// created. Repeated calls for the same tuple return the same thread.
func (s *Service) ResolveOrCreate(ctx context.Context, requesterID, counterpartyID, listingRef int) (models.Thread, bool, error) {
	if requesterID == counterpartyID {
		return models.Thread{}, false, ErrSelfThread
	}

	thread, err := s.threads.FindByPairAndListing(ctx, requesterID, counterpartyID, listingRef)
	if err == nil {
		return thread, false, nil
	}
	if !errors.Is(err, repositories.ErrThreadNotFound) {
		return models.Thread{}, false, err
	}

	thread, err = s.threads.Create(ctx, requesterID, counterpartyID, listingRef)
	if err == nil {
		return thread, true, nil
	}
	if errors.Is(err, repositories.ErrDuplicateThread) {
		// Lost a create race; the winner's row is authoritative.
		thread, err = s.threads.FindByPairAndListing(ctx, requesterID, counterpartyID, listingRef)
		return thread, false, err
	}
	return models.Thread{}, false, err
}

// Append validates, persists and broadcasts a message. Persist-then-broadcast
// runs under a per-thread lock so room delivery order equals commit order.
// A failed broadcast is not retried; clients reconcile via the history
// endpoint.
func (s *Service) Append(ctx context.Context, threadID, senderID int, text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > s.maxTextLen {
		return models.Message{}, ErrTextTooLong
	}

	thread, err := s.threads.FindByID(ctx, threadID)
	if err != nil {
		return models.Message{}, err
	}
	if err := AssertParticipant(thread, senderID); err != nil {
		return models.Message{}, err
	}

	unlock := s.lockThread(threadID)
	defer unlock()

	msg, err := s.messages.Append(ctx, threadID, senderID, text)
	if err != nil {
		return models.Message{}, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(threadID, msg)
	}
	return msg, nil
}

// History returns a thread and its full message log after the participant
// check.
func (s *Service) History(ctx context.Context, threadID, userID int) (models.Thread, []models.Message, error) {
	thread, err := s.threads.FindByID(ctx, threadID)
	if err != nil {
		return models.Thread{}, nil, err
	}
	if err := AssertParticipant(thread, userID); err != nil {
		return models.Thread{}, nil, err
	}

	msgs, err := s.messages.ListByThread(ctx, threadID)
	if err != nil {
		return models.Thread{}, nil, err
	}
	return thread, msgs, nil
}

// Authorize checks that userID may join the thread's room.
func (s *Service) Authorize(ctx context.Context, threadID, userID int) error {
	thread, err := s.threads.FindByID(ctx, threadID)
	if err != nil {
		return err
	}
	return AssertParticipant(thread, userID)
}

// ListForUser returns the user's threads, newest activity first.
func (s *Service) ListForUser(ctx context.Context, userID int) ([]models.ThreadSummary, error) {
	return s.threads.ListForUser(ctx, userID)
}

func (s *Service) lockThread(threadID int) func() {
	s.mu.Lock()
	lock, ok := s.threadLocks[threadID]
	if !ok {
		lock = &threadLock{}
		s.threadLocks[threadID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.threadLocks, threadID)
		}
		s.mu.Unlock()
	}
}
