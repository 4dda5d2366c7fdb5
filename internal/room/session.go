package room

import (
	"context"
	"sync"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
	"github.com/evindal/stonecast/internal/realtime"
)

// Session is one participant's live attachment to a room: its broadcast
// subscription, its presence registration, and the delivery loop that merges
// opponent events with departure notices.
type Session struct {
	Room models.Room
	Self models.Participant

	reg          *Registry
	sub          realtime.Subscription
	monitor      *Monitor
	stopPresence func()

	out  chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

func newSession(reg *Registry, rm models.Room, part models.Participant, sub realtime.Subscription, monitor *Monitor, stopPresence func()) *Session {
	s := &Session{
		Room:         rm,
		Self:         part,
		reg:          reg,
		sub:          sub,
		monitor:      monitor,
		stopPresence: stopPresence,
		out:          make(chan protocol.Envelope, 32),
		done:         make(chan struct{}),
	}
	go s.deliverLoop()
	return s
}

// Send validates authority and publishes the event to the room. The sender
// will not receive its own broadcast.
func (s *Session) Send(ctx context.Context, t protocol.EventType, payload map[string]interface{}) error {
	if err := protocol.ValidateSender(t, s.Self.Role); err != nil {
		return err
	}
	return s.reg.broker.Publish(ctx, s.Room.Code, protocol.Envelope{
		RoomCode:   s.Room.Code,
		Type:       t,
		SenderRole: s.Self.Role,
		Payload:    payload,
	})
}

// Events yields the opponent's events plus synthesized player_left notices.
// Guarantees are per-sender FIFO only, with one exception: once
// stones_settled for an end has been delivered, any stone_positions still in
// flight for that same end are dropped, so the authoritative final positions
// always win.
func (s *Session) Events() <-chan protocol.Envelope { return s.out }

func (s *Session) deliverLoop() {
	defer close(s.out)
	settled := make(map[int]bool)

	for {
		select {
		case <-s.done:
			return
		case env, ok := <-s.sub.Events():
			if !ok {
				return
			}
			switch env.Type {
			case protocol.EventStonesSettled:
				if end := env.EndNumber(); end >= 0 {
					settled[end] = true
				}
			case protocol.EventStonePositions:
				if end := env.EndNumber(); end >= 0 && settled[end] {
					continue // superseded by stones_settled
				}
			}
			s.forward(env)
		case dep, ok := <-s.monitor.Events():
			if !ok {
				return
			}
			s.reg.completeAbandoned(context.Background(), s.Room.Code)
			s.forward(protocol.Envelope{
				RoomCode:   s.Room.Code,
				Type:       protocol.EventPlayerLeft,
				SenderRole: dep.Role,
				Payload: map[string]interface{}{
					"role": string(dep.Role),
					"name": dep.Record.Name,
				},
			})
		}
	}
}

func (s *Session) forward(env protocol.Envelope) {
	select {
	case s.out <- env:
	case <-s.done:
	}
}

// Close detaches the participant: presence is withdrawn (surfacing a
// departure to the opponent), the subscription ends, and the room row is
// removed once the topic is empty.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.stopPresence()
		s.monitor.Stop()
		s.sub.Close()
		s.reg.release(context.Background(), s.Room.Code)
	})
}
