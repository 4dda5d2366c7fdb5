// Package realtime abstracts the pub/sub and presence primitives the session
// layer is built on. A topic maps to one room (keyed by its 6-character code)
// or to the matchmaking queue. Any networked backend able to fan out messages
// and track member liveness can satisfy Broker; the repo ships an in-memory
// broker for single-node use and tests, and a redis-backed one.
package realtime

import (
	"context"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
)

// PresenceKind distinguishes presence transitions.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent is emitted when a member's presence record appears on or
// vanishes from a topic.
type PresenceEvent struct {
	Topic  string
	Kind   PresenceKind
	Record models.PresenceRecord
}

// Subscription is one member's live event stream for a topic. Events sent by
// the subscriber itself are filtered out before delivery: a sender never
// receives its own broadcast, so both ends can use a single handler path for
// "opponent did X".
type Subscription interface {
	// Events yields envelopes published by the other participant. The
	// channel closes when the subscription is closed or the broker shuts
	// the topic down.
	Events() <-chan protocol.Envelope
	Close()
}

// Broker is the minimal realtime surface: publish, subscribe, and presence.
type Broker interface {
	// Publish fans the envelope out to every subscriber of the topic except
	// the sender. Delivery is at-most-once per subscriber; there is no
	// replay buffer.
	Publish(ctx context.Context, topic string, env protocol.Envelope) error

	// Subscribe attaches a member to a topic. self is the subscriber's own
	// role, used for sender self-exclusion.
	Subscribe(ctx context.Context, topic string, self models.Role) (Subscription, error)

	// TrackPresence registers a liveness record for the member on the topic
	// and keeps it alive until the returned stop function is called or the
	// context is cancelled.
	TrackPresence(ctx context.Context, topic string, rec models.PresenceRecord) (stop func(), err error)

	// Presence lists the records currently alive on the topic.
	Presence(ctx context.Context, topic string) ([]models.PresenceRecord, error)

	// WatchPresence streams presence transitions for the topic.
	WatchPresence(ctx context.Context, topic string) (<-chan PresenceEvent, func(), error)
}
