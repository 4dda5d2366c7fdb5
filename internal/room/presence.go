package room

import (
	"context"
	"sync"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/realtime"
)

// Departure reports that a participant's presence vanished from a room,
// whether through an orderly close or a lost heartbeat.
type Departure struct {
	Role   models.Role
	Record models.PresenceRecord
}

// Monitor observes a room's presence stream and surfaces the opponent's
// departure to the game layer. Its own joins and leaves are filtered out.
type Monitor struct {
	out    chan Departure
	cancel func()
	once   sync.Once
}

// NewMonitor starts watching the topic for departures of any role other
// than self.
func NewMonitor(ctx context.Context, broker realtime.Broker, topic string, self models.Role) (*Monitor, error) {
	events, cancel, err := broker.WatchPresence(ctx, topic)
	if err != nil {
		return nil, err
	}
	m := &Monitor{out: make(chan Departure, 4), cancel: cancel}
	go func() {
		defer close(m.out)
		for ev := range events {
			if ev.Kind != realtime.PresenceLeave || ev.Record.Role == self {
				continue
			}
			select {
			case m.out <- Departure{Role: ev.Record.Role, Record: ev.Record}:
			default:
			}
		}
	}()
	return m, nil
}

// Events yields opponent departures. The channel closes when the monitor
// stops.
func (m *Monitor) Events() <-chan Departure { return m.out }

// Stop halts the watch.
func (m *Monitor) Stop() {
	m.once.Do(m.cancel)
}
