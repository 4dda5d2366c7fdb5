// Package protocol defines the typed game events relayed between the two
// participants of a room and the authority rules that govern who may send
// them. Payloads are opaque to this layer: clients feed stone positions,
// shot parameters and scores straight through from the game engine.
package protocol

import (
	"errors"
	"fmt"

	"github.com/evindal/stonecast/internal/models"
)

// EventType enumerates the broadcast event catalog.
type EventType string

const (
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventGameStart    EventType = "game_start"
	EventTossChoice   EventType = "toss_choice"
	EventColorChoice  EventType = "color_choice"

	// High-frequency advisory preview of the intended shot. Never authoritative.
	EventAimState EventType = "aim_state"

	EventShot  EventType = "shot"
	EventSweep EventType = "sweep"

	// Host-authoritative physics outcomes. Both clients simulate shots
	// locally for responsiveness and reconcile to these.
	EventStonePositions EventType = "stone_positions"
	EventStonesSettled  EventType = "stones_settled"
	EventEndComplete    EventType = "end_complete"
	EventGameOver       EventType = "game_over"

	EventRematchRequest EventType = "rematch_request"
	EventRematchAccept  EventType = "rematch_accept"
	EventChat           EventType = "chat"
)

// ErrNotAuthorized is returned when a guest attempts to send an event the
// host alone is allowed to publish.
var ErrNotAuthorized = errors.New("sender not authorized for event type")

// ErrUnknownEvent is returned for event types outside the catalog.
var ErrUnknownEvent = errors.New("unknown event type")

// hostOnly lists events for which the host is the single source of truth.
// The host is chosen arbitrarily at room creation; making it authoritative
// for settled physics avoids a consensus protocol for a two-party match.
var hostOnly = map[EventType]bool{
	EventGameStart:      true,
	EventStonePositions: true,
	EventStonesSettled:  true,
	EventEndComplete:    true,
	EventGameOver:       true,
}

var known = map[EventType]bool{
	EventPlayerJoined: true, EventPlayerLeft: true,
	EventGameStart: true, EventTossChoice: true, EventColorChoice: true,
	EventAimState: true, EventShot: true, EventSweep: true,
	EventStonePositions: true, EventStonesSettled: true,
	EventEndComplete: true, EventGameOver: true,
	EventRematchRequest: true, EventRematchAccept: true, EventChat: true,
}

// HostOnly reports whether only the host may send the given event.
func HostOnly(t EventType) bool { return hostOnly[t] }

// ValidateSender checks that the sender's role is allowed to publish the
// event type. Either role may send anything not marked host-only.
func ValidateSender(t EventType, sender models.Role) error {
	if !known[t] {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, t)
	}
	if hostOnly[t] && sender != models.RoleHost {
		return fmt.Errorf("%w: %q is host-only", ErrNotAuthorized, t)
	}
	return nil
}

// Envelope wraps one broadcast event. Envelopes are transient: delivered
// at most once per subscriber per send, with no replay buffer.
type Envelope struct {
	RoomCode   string                 `json:"roomCode"`
	Type       EventType              `json:"type"`
	SenderRole models.Role            `json:"senderRole"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// EndNumber extracts the end ("inning") number from a stone event payload,
// or -1 when absent. Used to let stones_settled supersede in-flight
// stone_positions for the same end.
func (e *Envelope) EndNumber() int {
	if e.Payload == nil {
		return -1
	}
	switch v := e.Payload["end"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return -1
}
