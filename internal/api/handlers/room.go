package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"homechat/internal/models"
	"homechat/internal/realtime"
	"homechat/internal/repository"
)

type RoomHandler struct {
	rooms      repository.RoomRepository
	dispatcher *realtime.Dispatcher
}

func NewRoomHandler(rooms repository.RoomRepository, dispatcher *realtime.Dispatcher) *RoomHandler {
	return &RoomHandler{rooms: rooms, dispatcher: dispatcher}
}

func (h *RoomHandler) Create(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = "group"
	}

	room := &models.Room{
		Name:    req.Name,
		Kind:    req.Kind,
		OwnerID: userID,
	}
	if err := h.rooms.Create(c.Request.Context(), room, req.MemberIDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.NotifyRoomCreated(c.Request.Context(), room)

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Update(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		room.Name = req.Name
	}
	if err := h.rooms.Update(c.Request.Context(), room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.MemberIDs != nil {
		if err := h.rooms.SetMembers(c.Request.Context(), roomID, req.MemberIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	h.dispatcher.NotifyRoomUpdated(c.Request.Context(), room)

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Delete(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	if err := h.rooms.Delete(c.Request.Context(), roomID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Announce before the index forgets the room's subscribers.
	h.dispatcher.NotifyRoomDeleted(c.Request.Context(), roomID)

	c.JSON(http.StatusOK, gin.H{"deleted": roomID})
}
