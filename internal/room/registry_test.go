package room

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
	"github.com/evindal/stonecast/internal/realtime"
)

func newTestRegistry(t *testing.T) (*Registry, *MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewMemoryStore()
	reg := NewRegistry(store, realtime.NewMemoryBroker(), logger)
	reg.JoinWait = 500 * time.Millisecond
	return reg, store
}

func recvEvent(t *testing.T, sess *Session) protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-sess.Events():
		require.True(t, ok, "event channel closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return protocol.Envelope{}
	}
}

func TestCreateAndJoin(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "na-east")
	require.NoError(t, err)
	defer host.Close()

	assert.Equal(t, models.RoleHost, host.Self.Role)
	assert.Equal(t, "A", host.Self.Role.Team())
	require.NoError(t, ValidateCode(host.Room.Code))

	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "eu-west")
	require.NoError(t, err)
	defer guest.Close()

	assert.Equal(t, models.RoleGuest, guest.Self.Role)
	assert.Equal(t, "B", guest.Self.Role.Team())

	// The host is notified about the new guest.
	env := recvEvent(t, host)
	assert.Equal(t, protocol.EventPlayerJoined, env.Type)
	assert.Equal(t, "p-guest", env.Payload["id"])
	assert.Equal(t, "B", env.Payload["team"])
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()

	lower := "  " + strings.ToLower(host.Room.Code) + " "
	guest, err := reg.Join(ctx, lower, "p-guest", "Vice", "")
	require.NoError(t, err)
	defer guest.Close()
	assert.Equal(t, host.Room.Code, guest.Room.Code)
}

func TestGuestSlotFillsExactlyOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()

	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "")
	require.NoError(t, err)
	defer guest.Close()

	_, err = reg.Join(ctx, host.Room.Code, "p-third", "Third", "")
	require.ErrorIs(t, err, ErrRoomFull)
}

func TestMalformedCodeFailsBeforeAnyWait(t *testing.T) {
	reg, _ := newTestRegistry(t)

	start := time.Now()
	_, err := reg.Join(context.Background(), "AB", "p-guest", "Vice", "")
	require.ErrorIs(t, err, ErrInvalidCode)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAbsentHostTimesOutAfterFullWait(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	// Room row exists but the host never attached, so no presence shows up.
	require.NoError(t, store.Create(ctx, &models.Room{
		Code: "AB2C3D", HostID: "p-ghost", Status: models.RoomWaiting,
	}))

	start := time.Now()
	_, err := reg.Join(ctx, "AB2C3D", "p-guest", "Vice", "")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrRoomNotFound)
	// A well-formed but unknown code is indistinguishable from a host that
	// never showed: both wait out the whole window.
	assert.GreaterOrEqual(t, elapsed, reg.JoinWait)
}

func TestUnknownCodeTimesOutAfterFullWait(t *testing.T) {
	reg, _ := newTestRegistry(t)

	start := time.Now()
	_, err := reg.Join(context.Background(), "ZZZZ22", "p-guest", "Vice", "")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.GreaterOrEqual(t, elapsed, reg.JoinWait)
}

func TestSenderDoesNotReceiveOwnEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()
	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "")
	require.NoError(t, err)
	defer guest.Close()
	recvEvent(t, host) // drain player_joined

	require.NoError(t, host.Send(ctx, protocol.EventChat, map[string]interface{}{"msg": "hurry hard"}))

	env := recvEvent(t, guest)
	assert.Equal(t, protocol.EventChat, env.Type)

	select {
	case echo := <-host.Events():
		t.Fatalf("host received its own broadcast: %+v", echo)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGuestCannotSendHostOnlyEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()
	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "")
	require.NoError(t, err)
	defer guest.Close()

	err = guest.Send(ctx, protocol.EventStonesSettled, map[string]interface{}{"end": 1})
	require.ErrorIs(t, err, protocol.ErrNotAuthorized)
}

func TestSettledSupersedesPositionsForSameEnd(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()
	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "")
	require.NoError(t, err)
	defer guest.Close()
	recvEvent(t, host) // drain player_joined

	require.NoError(t, host.Send(ctx, protocol.EventStonesSettled, map[string]interface{}{"end": 3}))
	require.NoError(t, host.Send(ctx, protocol.EventStonePositions, map[string]interface{}{"end": 3}))
	require.NoError(t, host.Send(ctx, protocol.EventStonePositions, map[string]interface{}{"end": 4}))

	env := recvEvent(t, guest)
	assert.Equal(t, protocol.EventStonesSettled, env.Type)

	// The stale end-3 positions frame is dropped; end 4 comes through.
	env = recvEvent(t, guest)
	assert.Equal(t, protocol.EventStonePositions, env.Type)
	assert.Equal(t, 4, env.EndNumber())
}

func TestDepartureSurfacesAsPlayerLeft(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	defer host.Close()
	guest, err := reg.Join(ctx, host.Room.Code, "p-guest", "Vice", "")
	require.NoError(t, err)
	recvEvent(t, host) // drain player_joined

	guest.Close()

	env := recvEvent(t, host)
	require.Equal(t, protocol.EventPlayerLeft, env.Type)
	assert.Equal(t, string(models.RoleGuest), env.Payload["role"])

	// The abandoned room is marked completed so it can be collected.
	require.Eventually(t, func() bool {
		rm, err := store.Get(ctx, host.Room.Code)
		return err == nil && rm.Status == models.RoomCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestRoomRowRemovedWhenEmpty(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	host, err := reg.Create(ctx, "p-host", "Skip", "")
	require.NoError(t, err)
	code := host.Room.Code

	host.Close()

	_, err = store.Get(ctx, code)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAllocateMatchAssignsBothSeats(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	rm, err := reg.AllocateMatch(ctx, "p-claimer", "p-claimed")
	require.NoError(t, err)
	assert.Equal(t, "p-claimer", rm.HostID)
	assert.Equal(t, "p-claimed", rm.GuestID)
	assert.Equal(t, models.RoomReady, rm.Status)

	hostSess, err := reg.AttachMatched(ctx, rm.Code, "p-claimer", "Skip", "")
	require.NoError(t, err)
	defer hostSess.Close()
	assert.Equal(t, models.RoleHost, hostSess.Self.Role)

	guestSess, err := reg.AttachMatched(ctx, rm.Code, "p-claimed", "Vice", "")
	require.NoError(t, err)
	defer guestSess.Close()
	assert.Equal(t, models.RoleGuest, guestSess.Self.Role)

	_, err = reg.AttachMatched(ctx, rm.Code, "p-stranger", "X", "")
	require.ErrorIs(t, err, ErrRoomNotFound)
}
