package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mossy-p/webrtc-signaling/internal/middleware"
	"github.com/mossy-p/webrtc-signaling/internal/models"
	"github.com/mossy-p/webrtc-signaling/internal/store"
	"github.com/mossy-p/webrtc-signaling/internal/transport"
)

// Handler serves the room API and the call signaling endpoint.
type Handler struct {
	rooms          *store.Rooms
	hub            *Hub
	maxConnections int
}

func NewHandler(rooms *store.Rooms, hub *Hub, maxConnections int) *Handler {
	return &Handler{rooms: rooms, hub: hub, maxConnections: maxConnections}
}

// CreateRoom registers a call room for two participants (requires authentication)
func (h *Handler) CreateRoom(c *gin.Context) {
	userID := middleware.UserID(c)

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Participants[0] == req.Participants[1] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Participants must be distinct"})
		return
	}

	room := models.RoomMetadata{
		ID:           req.RoomID,
		Participants: req.Participants,
		CreatorID:    userID,
		CreatedAt:    time.Now(),
	}
	if !room.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Creator must be a participant"})
		return
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}

	if err := h.rooms.Create(c.Request.Context(), room); err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Room already exists"})
			return
		}
		log.Error().Err(err).Str("module", "rooms").Msg("failed to store room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	log.Info().Str("module", "rooms").Str("room", room.ID).Str("user", userID).Msg("room created")

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID:  room.ID,
		Channel: transport.ChannelName(room.ID),
	})
}

// GetRoom returns room information to its participants
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}
	if !room.HasParticipant(middleware.UserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// DeleteRoom deletes a room and disconnects its participants (creator only)
func (h *Handler) DeleteRoom(c *gin.Context) {
	userID := middleware.UserID(c)
	room, ok := h.loadRoom(c)
	if !ok {
		return
	}

	// Verify user is the creator
	if room.CreatorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	h.hub.closeRoom(room.ID)
	if err := h.rooms.Delete(c.Request.Context(), room.ID); err != nil {
		log.Error().Err(err).Str("module", "rooms").Str("room", room.ID).Msg("failed to delete room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	log.Info().Str("module", "rooms").Str("room", room.ID).Str("user", userID).Msg("room deleted")

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

func (h *Handler) loadRoom(c *gin.Context) (*models.RoomMetadata, bool) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("roomId"))
	if errors.Is(err, store.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("module", "rooms").Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load room"})
		return nil, false
	}
	return room, true
}
