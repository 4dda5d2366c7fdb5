// Package queue implements the skill-based matchmaking queue: a shared
// waiting list scanned by independent per-player search loops with an
// expanding rating tolerance, paired through an atomic conditional claim.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/evindal/stonecast/internal/models"
)

// ErrEntryNotFound is returned when a player has no live queue entry.
var ErrEntryNotFound = errors.New("queue entry not found")

// ErrClaimConflict reports a lost claim race. It is steady-state during
// matchmaking, recovered silently by the poll loop, and never surfaced to
// the user.
var ErrClaimConflict = errors.New("entry already claimed")

// Store is the shared waiting list. It is the only globally shared mutable
// resource in the system, so correctness rests entirely on Pair being a
// conditional write: both entries flip waiting→matched in one atomic step or
// not at all. Plain read-then-write pairing is unsafe and must not be used.
type Store interface {
	// Upsert inserts a fresh waiting entry, replacing any stale entry for
	// the same player.
	Upsert(ctx context.Context, e *models.QueueEntry) error

	// Get returns the player's live entry or ErrEntryNotFound.
	Get(ctx context.Context, playerID string) (*models.QueueEntry, error)

	// Waiting returns a snapshot of all waiting entries.
	Waiting(ctx context.Context) ([]*models.QueueEntry, error)

	// Pair atomically transitions both entries from waiting to matched,
	// writing roomCode and matchedWith together, if and only if both are
	// still waiting. Returns ErrClaimConflict when either side was claimed
	// first; once matched, status never returns to waiting.
	Pair(ctx context.Context, claimerID, candidateID, roomCode string) error

	// Delete removes the player's entry. Idempotent.
	Delete(ctx context.Context, playerID string) error

	// DeleteIfWaiting removes the entry only while it is still waiting, in
	// the same atomic step as the status check. A claim that lands first
	// wins and the committed match survives the removal attempt.
	DeleteIfWaiting(ctx context.Context, playerID string) error
}

// MemoryStore guards the waiting list with a single mutex, which makes Pair
// trivially atomic. Used by tests and single-node runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.QueueEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*models.QueueEntry)}
}

func (s *MemoryStore) Upsert(_ context.Context, e *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.PlayerID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, playerID string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[playerID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Waiting(_ context.Context) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.Status == models.QueueWaiting {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *MemoryStore) Pair(_ context.Context, claimerID, candidateID, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimer, ok := s.entries[claimerID]
	if !ok {
		return ErrEntryNotFound
	}
	candidate, ok := s.entries[candidateID]
	if !ok {
		return ErrEntryNotFound
	}
	if claimer.Status != models.QueueWaiting || candidate.Status != models.QueueWaiting {
		return ErrClaimConflict
	}
	claimer.Status = models.QueueMatched
	claimer.RoomCode = roomCode
	claimer.MatchedWith = candidateID
	candidate.Status = models.QueueMatched
	candidate.RoomCode = roomCode
	candidate.MatchedWith = claimerID
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, playerID)
	return nil
}

func (s *MemoryStore) DeleteIfWaiting(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[playerID]; ok && e.Status == models.QueueWaiting {
		delete(s.entries, playerID)
	}
	return nil
}
