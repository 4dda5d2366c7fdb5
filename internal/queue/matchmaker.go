package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
)

// Config holds the search cadence and the widening tolerance window. The
// window guarantees an eventual match: a player who waits long enough
// accepts any opponent.
type Config struct {
	PollEvery time.Duration

	NarrowFor       time.Duration // wait below this uses NarrowTolerance
	NarrowTolerance int
	MidFor          time.Duration // wait below this uses MidTolerance
	MidTolerance    int
	// beyond MidFor the window is unbounded
}

// DefaultConfig matches the reference cadence: 1.5 s polls, ±200 for the
// first 3 s, ±500 until 8 s, unbounded after.
func DefaultConfig() Config {
	return Config{
		PollEvery:       1500 * time.Millisecond,
		NarrowFor:       3 * time.Second,
		NarrowTolerance: 200,
		MidFor:          8 * time.Second,
		MidTolerance:    500,
	}
}

// tolerance returns the rating window for the given wait, or -1 for
// unbounded.
func (c Config) tolerance(wait time.Duration) int {
	switch {
	case wait < c.NarrowFor:
		return c.NarrowTolerance
	case wait < c.MidFor:
		return c.MidTolerance
	default:
		return -1
	}
}

// RoomAllocator provisions the room a successful claim hands to both
// players. Allocation happens before the claim so a matched entry never
// references a room that does not exist; a lost claim discards the room.
type RoomAllocator interface {
	AllocateMatch(ctx context.Context, hostID, guestID string) (*models.Room, error)
	DiscardRoom(ctx context.Context, code string) error
}

// Match is the outcome surfaced to an enqueued player. The claimer becomes
// host; the claimed side joins the same room as guest.
type Match struct {
	RoomCode   string
	OpponentID string
	Role       models.Role
}

// Matchmaker runs one cooperative search loop per enqueued player over the
// shared Store. No locks span players: safety against double-pairing comes
// from the store's atomic conditional Pair.
type Matchmaker struct {
	store  Store
	rooms  RoomAllocator
	logger *logrus.Logger
	cfg    Config

	mu    sync.Mutex
	loops map[string]context.CancelFunc
}

// New wires a matchmaker over the given store and room allocator.
func New(store Store, rooms RoomAllocator, logger *logrus.Logger, cfg Config) *Matchmaker {
	return &Matchmaker{
		store:  store,
		rooms:  rooms,
		logger: logger,
		cfg:    cfg,
		loops:  make(map[string]context.CancelFunc),
	}
}

// Enqueue replaces any stale entry for the player with a fresh waiting one
// and starts that player's search loop. The returned channel yields at most
// one Match and closes when the loop ends.
func (m *Matchmaker) Enqueue(ctx context.Context, playerID, playerName string, rating int) (<-chan Match, error) {
	entry := &models.QueueEntry{
		PlayerID:   playerID,
		PlayerName: playerName,
		EloRating:  rating,
		JoinedAt:   time.Now().UTC(),
		Status:     models.QueueWaiting,
	}
	if err := m.store.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if prev, ok := m.loops[playerID]; ok {
		prev() // stale loop from an earlier enqueue
	}
	m.loops[playerID] = cancel
	m.mu.Unlock()

	matches := make(chan Match, 1)
	go m.runSearch(loopCtx, playerID, matches)

	m.logger.WithFields(logrus.Fields{"player": playerID, "rating": rating}).Info("player enqueued")
	return matches, nil
}

// Dequeue removes the player's waiting entry and halts the search loop.
// Idempotent: a second call, or a call for an unknown player, is a no-op.
// A matched entry is not cancellable: the match is committed and the client
// must act on it, so the removal is conditional in the store, in the same
// atomic step as the status check.
func (m *Matchmaker) Dequeue(ctx context.Context, playerID string) error {
	m.mu.Lock()
	if cancel, ok := m.loops[playerID]; ok {
		cancel()
		delete(m.loops, playerID)
	}
	m.mu.Unlock()

	return m.store.DeleteIfWaiting(ctx, playerID)
}

// runSearch is the per-player poll loop. Each tick it first re-reads its own
// entry, since a counterpart's claim may already have flipped it to matched, and
// only then scans for candidates inside the current tolerance window, oldest
// joiner first.
func (m *Matchmaker) runSearch(ctx context.Context, playerID string, matches chan<- Match) {
	defer close(matches)
	defer func() {
		m.mu.Lock()
		delete(m.loops, playerID)
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.cfg.PollEvery)
	defer ticker.Stop()

	for {
		if done := m.searchTick(ctx, playerID, matches); done {
			return
		}
		select {
		case <-ctx.Done():
			// Cooperative cancel (dequeue or dropped client). Best effort
			// removal of a still-waiting entry so nobody pairs with a ghost;
			// conditional so a claim that just landed is not erased.
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = m.store.DeleteIfWaiting(cleanup, playerID)
			cancel()
			return
		case <-ticker.C:
		}
	}
}

// searchTick runs one iteration and reports whether the loop is finished.
func (m *Matchmaker) searchTick(ctx context.Context, playerID string, matches chan<- Match) bool {
	self, err := m.store.Get(ctx, playerID)
	if errors.Is(err, ErrEntryNotFound) {
		return true // dequeued underneath us
	}
	if err != nil {
		// Store unreachable: fail closed and keep polling.
		m.logger.WithError(err).WithField("player", playerID).Warn("queue store unavailable")
		return false
	}

	if self.Status == models.QueueMatched {
		// A counterpart's search claimed us; we lost the race (or never
		// raced) and join the assigned room as guest.
		m.surface(ctx, playerID, matches, Match{
			RoomCode:   self.RoomCode,
			OpponentID: self.MatchedWith,
			Role:       models.RoleGuest,
		})
		return true
	}

	tol := m.cfg.tolerance(self.WaitTime(time.Now().UTC()))

	waiting, err := m.store.Waiting(ctx)
	if err != nil {
		m.logger.WithError(err).WithField("player", playerID).Warn("queue scan failed")
		return false
	}

	for _, cand := range waiting {
		if cand.PlayerID == playerID {
			continue
		}
		if tol >= 0 && abs(cand.EloRating-self.EloRating) > tol {
			continue
		}

		rm, err := m.rooms.AllocateMatch(ctx, playerID, cand.PlayerID)
		if err != nil {
			m.logger.WithError(err).WithField("player", playerID).Warn("room allocation failed")
			return false
		}
		if err := m.store.Pair(ctx, playerID, cand.PlayerID, rm.Code); err != nil {
			_ = m.rooms.DiscardRoom(ctx, rm.Code)
			if errors.Is(err, ErrClaimConflict) {
				// Lost the race for this candidate (or our own entry was
				// claimed mid-scan). Expected steady-state; keep going.
				continue
			}
			m.logger.WithError(err).WithField("player", playerID).Warn("claim failed")
			return false
		}

		m.logger.WithFields(logrus.Fields{
			"player": playerID, "opponent": cand.PlayerID, "room": rm.Code,
		}).Info("match made")
		m.surface(ctx, playerID, matches, Match{
			RoomCode:   rm.Code,
			OpponentID: cand.PlayerID,
			Role:       models.RoleHost,
		})
		return true
	}
	return false
}

// surface delivers the match and retires the player's entry.
func (m *Matchmaker) surface(ctx context.Context, playerID string, matches chan<- Match, match Match) {
	select {
	case matches <- match:
	case <-ctx.Done():
	}
	cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.store.Delete(cleanup, playerID)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
