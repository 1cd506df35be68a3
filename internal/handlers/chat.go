package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nexus-chat/internal/chat"
	"nexus-chat/internal/models"
	"nexus-chat/internal/repositories"
	"nexus-chat/internal/telemetry"
)

// ChatHandler serves the thread endpoints. All thread and message operations
// delegate to the chat service so REST and the websocket gateway share one
// ingest path.
type ChatHandler struct {
	service *chat.Service
	audit   *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(service *chat.Service, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{service: service, audit: audit}
}

// threadResponse is the wire shape of a thread, with the participant pair
// flattened into an array the way the mobile client expects.
type threadResponse struct {
	ID           int                 `json:"id"`
	Participants [2]int              `json:"participants"`
	ListingRef   int                 `json:"listingRef"`
	Status       models.ThreadStatus `json:"status"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	Messages     []models.Message    `json:"messages"`
}

func newThreadResponse(thread models.Thread, msgs []models.Message) threadResponse {
	if msgs == nil {
		msgs = []models.Message{}
	}
	return threadResponse{
		ID:           thread.ID,
		Participants: thread.Participants(),
		ListingRef:   thread.ListingRef,
		Status:       thread.Status,
		CreatedAt:    thread.CreatedAt,
		UpdatedAt:    thread.UpdatedAt,
		Messages:     msgs,
	}
}

// ListThreads returns the caller's threads, newest activity first.
func (h *ChatHandler) ListThreads(c *gin.Context) {
	userID := c.GetInt("userID")

	threads, err := h.service.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	if threads == nil {
		threads = []models.ThreadSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"chats": threads})
}

// StartThread finds or creates the thread between the caller and the receiver
// for a listing. 200 for an existing thread, 201 for a new one.
func (h *ChatHandler) StartThread(c *gin.Context) {
	var req struct {
		ReceiverID int `json:"receiverId" binding:"required"`
		ListingRef int `json:"listingRef" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiverId and listingRef are required"})
		return
	}

	userID := c.GetInt("userID")
	thread, created, err := h.service.ResolveOrCreate(c.Request.Context(), userID, req.ReceiverID, req.ListingRef)
	if err != nil {
		if errors.Is(err, chat.ErrSelfThread) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a chat with yourself"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start chat"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.emitAudit(c, fmt.Sprintf("thread %d created for listing %d", thread.ID, thread.ListingRef))
	}
	c.JSON(status, newThreadResponse(thread, nil))
}

// GetMessages returns a thread with its full message history, participants
// only.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	threadID, ok := parseThreadID(c)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	thread, msgs, err := h.service.History(c.Request.Context(), threadID, userID)
	if err != nil {
		respondChatError(c, err, "failed to load messages")
		return
	}

	c.JSON(http.StatusOK, newThreadResponse(thread, msgs))
}

// PostMessage appends a message to a thread and returns the stored message
// with its server-assigned timestamp.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	threadID, ok := parseThreadID(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.service.Append(c.Request.Context(), threadID, userID, req.Text)
	if err != nil {
		respondChatError(c, err, "failed to store message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func parseThreadID(c *gin.Context) (int, bool) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return 0, false
	}
	return threadID, true
}

func respondChatError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, repositories.ErrThreadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat thread not found"})
	case errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
	case errors.Is(err, chat.ErrEmptyText), errors.Is(err, chat.ErrTextTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *ChatHandler) emitAudit(c *gin.Context, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
}
