package models

import (
	"time"

	"github.com/samber/lo"
)

// RoomMetadata stores information about a call room
type RoomMetadata struct {
	ID              string    `json:"id"`
	Participants    []string  `json:"participants"` // The two users allowed to join
	CreatorID       string    `json:"creatorId"`    // User ID from JWT who registered the room
	CreatedAt       time.Time `json:"createdAt"`
	ConnectionCount int       `json:"connectionCount"`
}

// HasParticipant reports whether userID may join the room.
func (r RoomMetadata) HasParticipant(userID string) bool {
	return lo.Contains(r.Participants, userID)
}

// OtherParticipant returns the participant that is not userID.
func (r RoomMetadata) OtherParticipant(userID string) string {
	other, _ := lo.Find(r.Participants, func(p string) bool { return p != userID })
	return other
}

// CreateRoomRequest is the request body for registering a room
type CreateRoomRequest struct {
	RoomID       string   `json:"roomId"` // Booking or interview id; generated when empty
	Participants []string `json:"participants" binding:"required,len=2,dive,required"`
}

// CreateRoomResponse is the response for registering a room
type CreateRoomResponse struct {
	RoomID  string `json:"roomId"`
	Channel string `json:"channel"`
}
