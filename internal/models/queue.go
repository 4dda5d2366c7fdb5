package models

import "time"

// QueueStatus is the lifecycle state of a matchmaking entry. Once an entry
// leaves waiting it never returns to it. Abandoned entries are physically
// removed (dequeue, loop cleanup, or store TTL) rather than marked.
type QueueStatus string

const (
	QueueWaiting QueueStatus = "waiting"
	QueueMatched QueueStatus = "matched"
)

// QueueEntry is one player's ticket in the matchmaking queue. At most one
// live entry exists per player; RoomCode and MatchedWith are written together
// in the same atomic claim that flips Status to matched.
type QueueEntry struct {
	PlayerID    string      `json:"playerId"`
	PlayerName  string      `json:"playerName"`
	EloRating   int         `json:"eloRating"`
	JoinedAt    time.Time   `json:"joinedAt"`
	Status      QueueStatus `json:"status"`
	RoomCode    string      `json:"roomCode,omitempty"`
	MatchedWith string      `json:"matchedWith,omitempty"`
}

// WaitTime reports how long the entry has been in the queue.
func (e *QueueEntry) WaitTime(now time.Time) time.Duration {
	return now.Sub(e.JoinedAt)
}
