package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
)

func recvEnvelope(t *testing.T, ch <-chan protocol.Envelope) protocol.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return protocol.Envelope{}
	}
}

func TestPublishExcludesSender(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	hostSub, err := b.Subscribe(ctx, "AB2C3D", models.RoleHost)
	require.NoError(t, err)
	defer hostSub.Close()
	guestSub, err := b.Subscribe(ctx, "AB2C3D", models.RoleGuest)
	require.NoError(t, err)
	defer guestSub.Close()

	env := protocol.Envelope{
		RoomCode:   "AB2C3D",
		Type:       protocol.EventChat,
		SenderRole: models.RoleHost,
		Payload:    map[string]interface{}{"msg": "good curling"},
	}
	require.NoError(t, b.Publish(ctx, "AB2C3D", env))

	got := recvEnvelope(t, guestSub.Events())
	assert.Equal(t, protocol.EventChat, got.Type)
	assert.Equal(t, models.RoleHost, got.SenderRole)

	select {
	case echo := <-hostSub.Events():
		t.Fatalf("sender received its own broadcast: %+v", echo)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishIsScopedToTopic(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	other, err := b.Subscribe(ctx, "ZZZZ22", models.RoleGuest)
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, "AB2C3D", protocol.Envelope{
		RoomCode: "AB2C3D", Type: protocol.EventShot, SenderRole: models.RoleHost,
	}))

	select {
	case env := <-other.Events():
		t.Fatalf("envelope leaked across topics: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenceLifecycle(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	events, cancel, err := b.WatchPresence(ctx, "AB2C3D")
	require.NoError(t, err)
	defer cancel()

	rec := models.PresenceRecord{Name: "Skip", Role: models.RoleHost, Status: "online"}
	stop, err := b.TrackPresence(ctx, "AB2C3D", rec)
	require.NoError(t, err)

	ev := <-events
	assert.Equal(t, PresenceJoin, ev.Kind)
	assert.Equal(t, models.RoleHost, ev.Record.Role)

	recs, err := b.Presence(ctx, "AB2C3D")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Skip", recs[0].Name)

	stop()
	ev = <-events
	assert.Equal(t, PresenceLeave, ev.Kind)

	recs, err = b.Presence(ctx, "AB2C3D")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPresenceStopOnContextCancel(t *testing.T) {
	b := NewMemoryBroker()
	watchCtx := context.Background()

	events, cancel, err := b.WatchPresence(watchCtx, "AB2C3D")
	require.NoError(t, err)
	defer cancel()

	trackCtx, trackCancel := context.WithCancel(context.Background())
	_, err = b.TrackPresence(trackCtx, "AB2C3D", models.PresenceRecord{Role: models.RoleGuest})
	require.NoError(t, err)
	<-events // join

	// Dropping the connection context must surface as a departure.
	trackCancel()
	select {
	case ev := <-events:
		assert.Equal(t, PresenceLeave, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no leave event after context cancel")
	}
}

func TestPublishRacingCloseDoesNotPanic(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	env := protocol.Envelope{
		RoomCode: "AB2C3D", Type: protocol.EventShot, SenderRole: models.RoleHost,
	}

	// One side hammers the topic while the other repeatedly subscribes and
	// tears down, the shape of an opponent broadcasting into a disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			_ = b.Publish(ctx, "AB2C3D", env)
		}
	}()
	for i := 0; i < 500; i++ {
		sub, err := b.Subscribe(ctx, "AB2C3D", models.RoleGuest)
		require.NoError(t, err)
		go sub.Close()
	}
	<-done
}

func TestStopIsIdempotent(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	events, cancel, err := b.WatchPresence(ctx, "AB2C3D")
	require.NoError(t, err)
	defer cancel()

	stop, err := b.TrackPresence(ctx, "AB2C3D", models.PresenceRecord{Role: models.RoleHost})
	require.NoError(t, err)
	<-events // join

	stop()
	<-events // leave
	stop() // second call must not emit another leave

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
