package domain

import "time"

// RoomID equals the meet id: a room is the live signaling session of a meet.
type RoomID string

// Meet is the persisted record a room is created from. The creator is the
// room owner and bypasses admission control.
type Meet struct {
	ID        RoomID    `json:"id"`
	Creator   UserID    `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
}
