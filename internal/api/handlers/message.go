package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"homechat/internal/models"
	"homechat/internal/realtime"
	"homechat/internal/repository"
)

// MessageHandler is the persist-then-notify side of the contract: every
// mutation lands in the store first, then the finalized entity goes to the
// dispatcher. The sender gets the result in the HTTP response; the realtime
// echo skips their sessions.
type MessageHandler struct {
	messages   repository.MessageRepository
	rooms      repository.RoomRepository
	dispatcher *realtime.Dispatcher
}

func NewMessageHandler(messages repository.MessageRepository, rooms repository.RoomRepository, dispatcher *realtime.Dispatcher) *MessageHandler {
	return &MessageHandler{messages: messages, rooms: rooms, dispatcher: dispatcher}
}

func roomIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("roomId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return uint(id), true
}

func (h *MessageHandler) requireMember(c *gin.Context, roomID, userID uint) bool {
	ok, err := h.rooms.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return false
	}
	return true
}

func (h *MessageHandler) Create(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	if !h.requireMember(c, roomID, userID) {
		return
	}

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Provider == "" {
		req.Provider = "text"
	}

	msg := &models.Message{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		SenderID: userID,
		Provider: req.Provider,
		Text:     req.Text,
		URL:      req.URL,
		FileName: req.FileName,
		SentAt:   time.Now(),
	}
	if err := h.messages.Create(c.Request.Context(), msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.NotifyNewMessage(c.Request.Context(), msg)

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	if !h.requireMember(c, roomID, userID) {
		return
	}
	messageID := c.Param("messageId")

	if err := h.messages.Delete(c.Request.Context(), roomID, messageID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.NotifyDeleted(c.Request.Context(), roomID, messageID)

	c.JSON(http.StatusOK, gin.H{"deleted": messageID})
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	if !h.requireMember(c, roomID, userID) {
		return
	}

	var req models.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messages.MarkRead(c.Request.Context(), userID, req.MessageIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.NotifyRead(c.Request.Context(), roomID, userID, req.MessageIDs)

	c.JSON(http.StatusOK, gin.H{"read": len(req.MessageIDs)})
}

func (h *MessageHandler) React(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	if !h.requireMember(c, roomID, userID) {
		return
	}
	messageID := c.Param("messageId")

	var req models.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.messages.ToggleReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.NotifyReaction(c.Request.Context(), roomID, messageID, userID, req.Emoji, outcome)

	c.JSON(http.StatusOK, gin.H{"action": outcome})
}
