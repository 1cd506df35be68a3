package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/mocks"
	"nexus-chat/internal/models"
	"nexus-chat/internal/repositories"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats", handler.ListThreads)
	r.POST("/chats/start", handler.StartThread)
	r.GET("/chats/:thread_id/messages", handler.GetMessages)
	r.POST("/chats/:thread_id/messages", handler.PostMessage)
	return r
}

func newTestHandler(threadRepo *mocks.ThreadRepositoryMock, messageRepo *mocks.MessageRepositoryMock) *ChatHandler {
	svc := chat.NewService(threadRepo, messageRepo, nil, 0)
	return NewChatHandler(svc, nil)
}

func TestListThreadsSuccess(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("ListForUser", mock.Anything, 1).Return([]models.ThreadSummary{
		{ThreadID: 3, ListingRef: 9, CounterpartyID: 2, Status: models.StatusOpen},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ThreadSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, 3, resp.Chats[0].ThreadID)
	assert.Equal(t, 2, resp.Chats[0].CounterpartyID)

	threadRepo.AssertExpectations(t)
}

func TestListThreadsRepoError(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("ListForUser", mock.Anything, 1).Return(([]models.ThreadSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	threadRepo.AssertExpectations(t)
}

func TestStartThreadCreates(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("FindByPairAndListing", mock.Anything, 1, 2, 9).Return(models.Thread{}, repositories.ErrThreadNotFound).Once()
	threadRepo.On("Create", mock.Anything, 1, 2, 9).Return(models.Thread{ID: 10, UserLo: 1, UserHi: 2, ListingRef: 9, Status: models.StatusOpen}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/start", bytes.NewBufferString(`{"receiverId":2,"listingRef":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 10, resp["id"])
	assert.Equal(t, []any{float64(1), float64(2)}, resp["participants"])

	threadRepo.AssertExpectations(t)
}

func TestStartThreadReturnsExisting(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("FindByPairAndListing", mock.Anything, 1, 2, 9).Return(models.Thread{ID: 10, UserLo: 1, UserHi: 2, ListingRef: 9}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/start", bytes.NewBufferString(`{"receiverId":2,"listingRef":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	threadRepo.AssertExpectations(t)
}

func TestStartThreadWithSelf(t *testing.T) {
	router := setupChatRouter(newTestHandler(new(mocks.ThreadRepositoryMock), new(mocks.MessageRepositoryMock)))

	req := httptest.NewRequest(http.MethodPost, "/chats/start", bytes.NewBufferString(`{"receiverId":1,"listingRef":9}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartThreadMissingFields(t *testing.T) {
	router := setupChatRouter(newTestHandler(new(mocks.ThreadRepositoryMock), new(mocks.MessageRepositoryMock)))

	req := httptest.NewRequest(http.MethodPost, "/chats/start", bytes.NewBufferString(`{"receiverId":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessagesSuccess(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, messageRepo))

	threadRepo.On("FindByID", mock.Anything, 5).Return(models.Thread{ID: 5, UserLo: 1, UserHi: 2, ListingRef: 9}, nil).Once()
	messageRepo.On("ListByThread", mock.Anything, 5).Return([]models.Message{
		{ID: 1, ThreadID: 5, SenderID: 1, Text: "hello"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ID       int              `json:"id"`
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 5, resp.ID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Text)
	assert.Equal(t, 1, resp.Messages[0].SenderID)

	threadRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesForbiddenForOutsider(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("FindByID", mock.Anything, 5).Return(models.Thread{ID: 5, UserLo: 2, UserHi: 3}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hello")
}

func TestGetMessagesThreadMissing(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, new(mocks.MessageRepositoryMock)))

	threadRepo.On("FindByID", mock.Anything, 5).Return(models.Thread{}, repositories.ErrThreadNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessagesInvalidID(t *testing.T) {
	router := setupChatRouter(newTestHandler(new(mocks.ThreadRepositoryMock), new(mocks.MessageRepositoryMock)))

	req := httptest.NewRequest(http.MethodGet, "/chats/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageSuccess(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, messageRepo))

	threadRepo.On("FindByID", mock.Anything, 5).Return(models.Thread{ID: 5, UserLo: 1, UserHi: 2}, nil).Once()
	messageRepo.On("Append", mock.Anything, 5, 1, "hi").Return(models.Message{ID: 7, ThreadID: 5, SenderID: 1, Text: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, 7, msg.ID)
	assert.Equal(t, "hi", msg.Text)

	threadRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostMessageForbidden(t *testing.T) {
	threadRepo := new(mocks.ThreadRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(newTestHandler(threadRepo, messageRepo))

	threadRepo.On("FindByID", mock.Anything, 5).Return(models.Thread{ID: 5, UserLo: 2, UserHi: 3}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageEmptyBody(t *testing.T) {
	router := setupChatRouter(newTestHandler(new(mocks.ThreadRepositoryMock), new(mocks.MessageRepositoryMock)))

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
