package models

import "time"

// RoomStatus tracks where a room is in its lifecycle.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "waiting"     // host present, guest slot open
	RoomReady      RoomStatus = "ready"       // both participants attached
	RoomInProgress RoomStatus = "in_progress" // match underway
	RoomCompleted  RoomStatus = "completed"   // match over or abandoned
)

// Room is an addressable two-participant match context identified by a short
// code. The guest slot is filled at most once over the room's lifetime.
type Room struct {
	Code      string     `json:"code"`
	HostID    string     `json:"hostId"`
	GuestID   string     `json:"guestId,omitempty"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Role identifies which seat a participant occupies in a room.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Team returns the fixed team assignment derived from the role: the host is
// always team A, the guest team B.
func (r Role) Team() string {
	if r == RoleHost {
		return "A"
	}
	return "B"
}

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Participant describes one of the two players attached to a room.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Region      string `json:"region"`
	Role        Role   `json:"role"`
}

// PresenceRecord is the liveness/identity record a participant maintains
// while connected to a room or queue topic.
type PresenceRecord struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	Role   Role   `json:"role"`
	Status string `json:"status"`
}
