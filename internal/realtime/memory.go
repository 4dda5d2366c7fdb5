package realtime

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
)

// subBuffer is sized so a slow reader absorbs a burst of aim_state frames
// before drops begin.
const subBuffer = 32

// MemoryBroker is a process-local Broker. All coordination happens through
// channels guarded by one mutex per broker; suitable for tests and for
// running the whole service on a single node.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]*memTopic
}

type memTopic struct {
	subs     map[*memSubscription]struct{}
	presence map[string]models.PresenceRecord // keyed by role
	watchers map[chan PresenceEvent]struct{}
}

type memSubscription struct {
	broker *MemoryBroker
	topic  string
	self   models.Role
	ch     chan protocol.Envelope
	once   sync.Once
}

// NewMemoryBroker returns an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]*memTopic)}
}

func (b *MemoryBroker) topic(name string) *memTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memTopic{
			subs:     make(map[*memSubscription]struct{}),
			presence: make(map[string]models.PresenceRecord),
			watchers: make(map[chan PresenceEvent]struct{}),
		}
		b.topics[name] = t
	}
	return t
}

// Publish delivers env to every subscriber of topic except the sender.
// Sends are non-blocking: a full subscriber buffer drops the envelope rather
// than stalling the publisher, which is acceptable for advisory traffic and
// logged for everything else. The fan-out stays under the broker mutex; the
// sends never block, and Close removes and closes a subscription under the
// same mutex, so a publish can never hit a closed channel.
func (b *MemoryBroker) Publish(_ context.Context, topic string, env protocol.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.topic(topic).subs {
		if s.self == env.SenderRole {
			continue // sender self-exclusion
		}
		select {
		case s.ch <- env:
		default:
			if env.Type != protocol.EventAimState {
				log.WithFields(log.Fields{"topic": topic, "type": env.Type}).
					Warn("subscriber buffer full, dropped envelope")
			}
		}
	}
	return nil
}

// Subscribe attaches a new subscription to the topic.
func (b *MemoryBroker) Subscribe(_ context.Context, topic string, self models.Role) (Subscription, error) {
	s := &memSubscription{
		broker: b,
		topic:  topic,
		self:   self,
		ch:     make(chan protocol.Envelope, subBuffer),
	}
	b.mu.Lock()
	b.topic(topic).subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (s *memSubscription) Events() <-chan protocol.Envelope { return s.ch }

func (s *memSubscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		if t, ok := s.broker.topics[s.topic]; ok {
			delete(t.subs, s)
		}
		// Closed under the mutex so no concurrent Publish can be mid
		// fan-out on this channel.
		close(s.ch)
		s.broker.mu.Unlock()
	})
}

// TrackPresence registers rec on the topic and notifies watchers. The stop
// function removes the record and emits the matching leave transition; it is
// also invoked when ctx is cancelled so a dropped connection surfaces as a
// departure without an explicit leave message.
func (b *MemoryBroker) TrackPresence(ctx context.Context, topic string, rec models.PresenceRecord) (func(), error) {
	b.mu.Lock()
	t := b.topic(topic)
	t.presence[string(rec.Role)] = rec
	b.mu.Unlock()

	b.notify(topic, PresenceEvent{Topic: topic, Kind: PresenceJoin, Record: rec})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			if t, ok := b.topics[topic]; ok {
				delete(t.presence, string(rec.Role))
			}
			b.mu.Unlock()
			b.notify(topic, PresenceEvent{Topic: topic, Kind: PresenceLeave, Record: rec})
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

// Presence lists live records for the topic.
func (b *MemoryBroker) Presence(_ context.Context, topic string) ([]models.PresenceRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return nil, nil
	}
	recs := make([]models.PresenceRecord, 0, len(t.presence))
	for _, r := range t.presence {
		recs = append(recs, r)
	}
	return recs, nil
}

// WatchPresence streams presence transitions until cancel is called.
func (b *MemoryBroker) WatchPresence(_ context.Context, topic string) (<-chan PresenceEvent, func(), error) {
	ch := make(chan PresenceEvent, subBuffer)
	b.mu.Lock()
	b.topic(topic).watchers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if t, ok := b.topics[topic]; ok {
				delete(t.watchers, ch)
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// notify fans a presence transition out to the topic's watchers. Like
// Publish, delivery happens under the mutex with non-blocking sends so a
// cancelled watcher's closed channel is never written to.
func (b *MemoryBroker) notify(topic string, ev PresenceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return
	}
	for ch := range t.watchers {
		select {
		case ch <- ev:
		default:
			log.WithField("topic", topic).Warn("presence watcher buffer full, dropped event")
		}
	}
}
