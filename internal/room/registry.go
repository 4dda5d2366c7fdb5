package room

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
	"github.com/evindal/stonecast/internal/realtime"
)

const (
	// DefaultJoinWait bounds how long a joiner waits to observe the host's
	// presence before the room is reported as not found.
	DefaultJoinWait = 10 * time.Second

	// presencePollEvery is the cadence of the join-side presence check.
	presencePollEvery = 250 * time.Millisecond

	// createAttempts bounds retries on a room code collision.
	createAttempts = 5
)

// Registry creates rooms, admits guests, and attaches participants to their
// room's broadcast channel. All room rows live in the Store; all event and
// presence traffic goes through the Broker.
type Registry struct {
	store  Store
	broker realtime.Broker
	logger *logrus.Logger

	// JoinWait can be lowered in tests.
	JoinWait time.Duration
}

// NewRegistry wires a registry over the given store and broker.
func NewRegistry(store Store, broker realtime.Broker, logger *logrus.Logger) *Registry {
	return &Registry{
		store:    store,
		broker:   broker,
		logger:   logger,
		JoinWait: DefaultJoinWait,
	}
}

// Create allocates a fresh room with the caller as host and attaches them.
// The returned session's room code is shared out of band for a guest to join.
func (r *Registry) Create(ctx context.Context, hostID, hostName, hostRegion string) (*Session, error) {
	rm, err := r.Allocate(ctx, hostID)
	if err != nil {
		return nil, err
	}
	host := models.Participant{ID: hostID, DisplayName: hostName, Region: hostRegion, Role: models.RoleHost}
	sess, err := r.attach(ctx, *rm, host)
	if err != nil {
		_ = r.store.Delete(ctx, rm.Code)
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"code": rm.Code, "host": hostID}).Info("room created")
	return sess, nil
}

// Allocate creates a room row with a fresh unique code but does not attach
// anyone. The matchmaking queue uses it to hand a pre-assigned room to both
// matched players.
func (r *Registry) Allocate(ctx context.Context, hostID string) (*models.Room, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		rm := &models.Room{
			Code:      code,
			HostID:    hostID,
			Status:    models.RoomWaiting,
			CreatedAt: time.Now().UTC(),
		}
		err = r.store.Create(ctx, rm)
		if err == nil {
			return rm, nil
		}
		if err != ErrCodeTaken {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted %d room code attempts", createAttempts)
}

// AllocateMatch provisions a matchmade room with both seats pre-assigned:
// the claimer takes host, the claimed candidate guest. Neither player is
// attached yet; each side attaches with AttachMatched once the match
// surfaces.
func (r *Registry) AllocateMatch(ctx context.Context, hostID, guestID string) (*models.Room, error) {
	rm, err := r.Allocate(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetGuest(ctx, rm.Code, guestID); err != nil {
		_ = r.store.Delete(ctx, rm.Code)
		return nil, err
	}
	rm.GuestID = guestID
	rm.Status = models.RoomReady
	return rm, nil
}

// DiscardRoom drops a provisioned room whose claim lost the race.
func (r *Registry) DiscardRoom(ctx context.Context, code string) error {
	return r.store.Delete(ctx, code)
}

// Join admits a guest into the room identified by code. The code is
// normalized first and rejected outright when malformed. The guest then
// waits up to JoinWait for the host's presence: a missing or mistyped room
// and a host that never showed both surface as ErrRoomNotFound after the
// full wait, never early. On success the guest slot is claimed (exactly
// once per room lifetime), the guest is attached, and the host is notified
// with player_joined.
func (r *Registry) Join(ctx context.Context, code, guestID, guestName, guestRegion string) (*Session, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, err
	}

	if err := r.awaitHost(ctx, code); err != nil {
		return nil, err
	}

	if err := r.store.SetGuest(ctx, code, guestID); err != nil {
		return nil, err
	}
	rm, err := r.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	guest := models.Participant{ID: guestID, DisplayName: guestName, Region: guestRegion, Role: models.RoleGuest}
	sess, err := r.attach(ctx, *rm, guest)
	if err != nil {
		return nil, err
	}

	if err := sess.Send(ctx, protocol.EventPlayerJoined, map[string]interface{}{
		"id":     guestID,
		"name":   guestName,
		"region": guestRegion,
		"team":   models.RoleGuest.Team(),
	}); err != nil {
		r.logger.WithError(err).WithField("code", code).Warn("player_joined broadcast failed")
	}
	r.logger.WithFields(logrus.Fields{"code": code, "guest": guestID}).Info("guest joined room")
	return sess, nil
}

// AttachMatched attaches a matchmade player to the room the queue assigned.
// The player's role comes from the room row written during the claim.
func (r *Registry) AttachMatched(ctx context.Context, code, playerID, name, region string) (*Session, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	rm, err := r.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	var role models.Role
	switch playerID {
	case rm.HostID:
		role = models.RoleHost
	case rm.GuestID:
		role = models.RoleGuest
	default:
		return nil, fmt.Errorf("player %s is not a participant of room %s: %w", playerID, code, ErrRoomNotFound)
	}

	part := models.Participant{ID: playerID, DisplayName: name, Region: region, Role: role}
	sess, err := r.attach(ctx, *rm, part)
	if err != nil {
		return nil, err
	}
	if role == models.RoleGuest {
		_ = sess.Send(ctx, protocol.EventPlayerJoined, map[string]interface{}{
			"id": playerID, "name": name, "region": region, "team": role.Team(),
		})
	}
	return sess, nil
}

// Lookup returns the current room row, with both seat assignments as of the
// call.
func (r *Registry) Lookup(ctx context.Context, code string) (*models.Room, error) {
	return r.store.Get(ctx, NormalizeCode(code))
}

// MarkStatus records a lifecycle transition on the room row: in_progress on
// game start, completed at game over, back to ready when a rematch is
// accepted under the same code.
func (r *Registry) MarkStatus(ctx context.Context, code string, status models.RoomStatus) error {
	return r.store.SetStatus(ctx, code, status)
}

// awaitHost polls the room's presence until the host shows up or the join
// wait elapses.
func (r *Registry) awaitHost(ctx context.Context, code string) error {
	deadline := time.NewTimer(r.JoinWait)
	defer deadline.Stop()
	ticker := time.NewTicker(presencePollEvery)
	defer ticker.Stop()

	for {
		recs, err := r.broker.Presence(ctx, code)
		if err != nil {
			r.logger.WithError(err).WithField("code", code).Warn("presence lookup failed")
		}
		for _, rec := range recs {
			if rec.Role == models.RoleHost {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrRoomNotFound
		case <-ticker.C:
		}
	}
}

// attach subscribes the participant to the room topic, registers presence,
// and starts the session's delivery loop.
func (r *Registry) attach(ctx context.Context, rm models.Room, part models.Participant) (*Session, error) {
	sub, err := r.broker.Subscribe(ctx, rm.Code, part.Role)
	if err != nil {
		return nil, err
	}
	monitor, err := NewMonitor(ctx, r.broker, rm.Code, part.Role)
	if err != nil {
		sub.Close()
		return nil, err
	}
	stop, err := r.broker.TrackPresence(ctx, rm.Code, models.PresenceRecord{
		Name:   part.DisplayName,
		Region: part.Region,
		Role:   part.Role,
		Status: "online",
	})
	if err != nil {
		monitor.Stop()
		sub.Close()
		return nil, err
	}
	return newSession(r, rm, part, sub, monitor, stop), nil
}

// completeAbandoned marks a room completed after a departure mid-match so it
// can be garbage collected. Best effort: the row may already be gone.
func (r *Registry) completeAbandoned(ctx context.Context, code string) {
	if err := r.store.SetStatus(ctx, code, models.RoomCompleted); err != nil && err != ErrRoomNotFound {
		r.logger.WithError(err).WithField("code", code).Warn("failed to mark room completed")
	}
}

// release tears down a room row once nobody is present on its topic anymore.
func (r *Registry) release(ctx context.Context, code string) {
	recs, err := r.broker.Presence(ctx, code)
	if err != nil || len(recs) > 0 {
		return
	}
	if err := r.store.Delete(ctx, code); err != nil {
		r.logger.WithError(err).WithField("code", code).Warn("room cleanup failed")
	}
}
