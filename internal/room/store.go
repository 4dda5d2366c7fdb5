package room

import (
	"context"
	"errors"
	"sync"

	"github.com/evindal/stonecast/internal/models"
)

// ErrRoomNotFound is returned when no host was observed for a code within
// the join wait, or when a store lookup misses.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomFull is returned when the guest slot is already occupied.
var ErrRoomFull = errors.New("room already has a guest")

// ErrCodeTaken is returned by Create on a code collision.
var ErrCodeTaken = errors.New("room code already in use")

// Store holds room rows keyed by code. SetGuest must be a conditional write:
// it fills the slot only while it is empty, so a second joiner is rejected
// no matter how the two attempts interleave.
type Store interface {
	Create(ctx context.Context, rm *models.Room) error
	Get(ctx context.Context, code string) (*models.Room, error)
	SetGuest(ctx context.Context, code, guestID string) error
	SetStatus(ctx context.Context, code string, status models.RoomStatus) error
	Delete(ctx context.Context, code string) error
}

// MemoryStore is the in-process Store used by tests and single-node runs.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*models.Room)}
}

func (s *MemoryStore) Create(_ context.Context, rm *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[rm.Code]; exists {
		return ErrCodeTaken
	}
	cp := *rm
	s.rooms[rm.Code] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *rm
	return &cp, nil
}

// SetGuest fills the guest slot if and only if it is still empty.
func (s *MemoryStore) SetGuest(_ context.Context, code, guestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if rm.GuestID != "" {
		return ErrRoomFull
	}
	rm.GuestID = guestID
	rm.Status = models.RoomReady
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, code string, status models.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	rm.Status = status
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}
