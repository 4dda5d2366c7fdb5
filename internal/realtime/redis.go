package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
)

const (
	// presenceTTL bounds how long a crashed member still looks alive.
	presenceTTL = 15 * time.Second
	// heartbeatEvery refreshes the presence key well inside the TTL.
	heartbeatEvery = 5 * time.Second
)

// RedisBroker implements Broker on redis pub/sub channels plus presence keys
// with a TTL heartbeat. One redis channel carries a topic's envelopes and a
// second one its presence transitions; key expiry covers members that vanish
// without unregistering.
type RedisBroker struct {
	rdb *redis.Client
}

// NewRedisBroker wraps an already-connected client.
func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func eventChannel(topic string) string    { return "stonecast:topic:" + topic + ":events" }
func presenceChannel(topic string) string { return "stonecast:topic:" + topic + ":presence" }
func presenceKey(topic string, role models.Role) string {
	return "stonecast:topic:" + topic + ":member:" + string(role)
}

// presenceMsg is the wire form of a presence transition.
type presenceMsg struct {
	Kind   PresenceKind          `json:"kind"`
	Record models.PresenceRecord `json:"record"`
}

// Publish sends the envelope to the topic's event channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, eventChannel(topic), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", eventChannel(topic), err)
	}
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan protocol.Envelope
	once sync.Once
}

// Subscribe attaches to the topic's event channel. Redis delivers every
// message to every subscriber, so sender self-exclusion happens here by
// dropping envelopes carrying the subscriber's own role.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string, self models.Role) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, eventChannel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", eventChannel(topic), err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan protocol.Envelope, subBuffer)}
	go func() {
		defer close(sub.ch)
		for msg := range ps.Channel() {
			var env protocol.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.WithError(err).WithField("topic", topic).Warn("bad envelope on event channel")
				continue
			}
			if env.SenderRole == self {
				continue
			}
			select {
			case sub.ch <- env:
			default:
				if env.Type != protocol.EventAimState {
					log.WithFields(log.Fields{"topic": topic, "type": env.Type}).
						Warn("subscriber buffer full, dropped envelope")
				}
			}
		}
	}()
	return sub, nil
}

func (s *redisSubscription) Events() <-chan protocol.Envelope { return s.ch }

func (s *redisSubscription) Close() {
	s.once.Do(func() { _ = s.ps.Close() })
}

// TrackPresence writes the member's presence key with a TTL, heartbeats it,
// and announces the join. The stop function deletes the key and announces
// the leave; if the process dies instead, the TTL expires and watchers pick
// the departure up on their next sweep.
func (b *RedisBroker) TrackPresence(ctx context.Context, topic string, rec models.PresenceRecord) (func(), error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal presence record: %w", err)
	}
	key := presenceKey(topic, rec.Role)
	if err := b.rdb.Set(ctx, key, data, presenceTTL).Err(); err != nil {
		return nil, fmt.Errorf("set presence key: %w", err)
	}
	b.announce(ctx, topic, presenceMsg{Kind: PresenceJoin, Record: rec})

	hbCtx, hbCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := b.rdb.Expire(hbCtx, key, presenceTTL).Err(); err != nil {
					log.WithError(err).WithField("topic", topic).Warn("presence heartbeat failed")
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			hbCancel()
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = b.rdb.Del(cleanup, key).Err()
			b.announce(cleanup, topic, presenceMsg{Kind: PresenceLeave, Record: rec})
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

func (b *RedisBroker) announce(ctx context.Context, topic string, msg presenceMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, presenceChannel(topic), data).Err(); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("presence announce failed")
	}
}

// Presence lists the live presence records under the topic's member keys.
func (b *RedisBroker) Presence(ctx context.Context, topic string) ([]models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	for _, role := range []models.Role{models.RoleHost, models.RoleGuest} {
		data, err := b.rdb.Get(ctx, presenceKey(topic, role)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get presence key: %w", err)
		}
		var rec models.PresenceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// WatchPresence merges explicit join/leave announcements with a periodic
// sweep of the presence keys, so TTL expiry of a crashed member also surfaces
// as a leave.
func (b *RedisBroker) WatchPresence(ctx context.Context, topic string) (<-chan PresenceEvent, func(), error) {
	ps := b.rdb.Subscribe(ctx, presenceChannel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribe presence channel: %w", err)
	}

	out := make(chan PresenceEvent, subBuffer)
	watchCtx, cancelCtx := context.WithCancel(context.Background())

	// A single goroutine owns out: it merges explicit announcements with the
	// expiry sweep and closes the channel on cancellation.
	go func() {
		defer close(out)
		known := make(map[models.Role]models.PresenceRecord)
		ticker := time.NewTicker(heartbeatEvery)
		defer ticker.Stop()

		emit := func(ev PresenceEvent) {
			select {
			case out <- ev:
			default:
				log.WithField("topic", topic).Warn("presence watcher buffer full, dropped event")
			}
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case msg, ok := <-ps.Channel():
				if !ok {
					return
				}
				var pm presenceMsg
				if err := json.Unmarshal([]byte(msg.Payload), &pm); err != nil {
					continue
				}
				if pm.Kind == PresenceLeave {
					delete(known, pm.Record.Role)
				} else {
					known[pm.Record.Role] = pm.Record
				}
				emit(PresenceEvent{Topic: topic, Kind: pm.Kind, Record: pm.Record})
			case <-ticker.C:
				recs, err := b.Presence(watchCtx, topic)
				if err != nil {
					continue
				}
				alive := make(map[models.Role]bool, len(recs))
				for _, r := range recs {
					alive[r.Role] = true
					known[r.Role] = r
				}
				for role, rec := range known {
					if !alive[role] {
						delete(known, role)
						emit(PresenceEvent{Topic: topic, Kind: PresenceLeave, Record: rec})
					}
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
