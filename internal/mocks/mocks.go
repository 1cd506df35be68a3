package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"nexus-chat/internal/models"
	"nexus-chat/internal/repositories"
)

type ThreadRepositoryMock struct {
	mock.Mock
}

func (m *ThreadRepositoryMock) Create(ctx context.Context, userA, userB, listingRef int) (models.Thread, error) {
	args := m.Called(ctx, userA, userB, listingRef)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) FindByPairAndListing(ctx context.Context, userA, userB, listingRef int) (models.Thread, error) {
	args := m.Called(ctx, userA, userB, listingRef)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) FindByID(ctx context.Context, threadID int) (models.Thread, error) {
	args := m.Called(ctx, threadID)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.ThreadSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ThreadSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ThreadSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, threadID, senderID int, text string) (models.Message, error) {
	args := m.Called(ctx, threadID, senderID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByThread(ctx context.Context, threadID int) ([]models.Message, error) {
	args := m.Called(ctx, threadID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

// BroadcasterMock records fan-out calls from the chat service.
type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastMessage(threadID int, msg models.Message) {
	m.Called(threadID, msg)
}

var _ repositories.ThreadRepository = (*ThreadRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
