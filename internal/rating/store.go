package rating

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
)

// Store persists PlayerRating records. Get returns a freshly seeded record
// for an unknown player so the first match needs no separate registration
// step.
type Store interface {
	Get(ctx context.Context, playerID string) (*models.PlayerRating, error)
	Save(ctx context.Context, winner, loser *models.PlayerRating) error
	Top(ctx context.Context, n int) ([]models.PlayerRating, error)
}

// Service applies post-match updates on top of a Store.
type Service struct {
	store  Store
	logger *logrus.Logger
}

// NewService wires a rating service.
func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Update settles a finished match: winner gains WinnerDelta, loser drops
// LoserDelta (floored at 100), and the counters and streaks move. Both
// records persist in one Save.
func (s *Service) Update(ctx context.Context, winnerID, loserID string) (*models.PlayerRating, *models.PlayerRating, error) {
	winner, err := s.store.Get(ctx, winnerID)
	if err != nil {
		return nil, nil, err
	}
	loser, err := s.store.Get(ctx, loserID)
	if err != nil {
		return nil, nil, err
	}

	gain := WinnerDelta(winner.EloRating, loser.EloRating)
	loss := LoserDelta(winner.EloRating, loser.EloRating)

	winner.EloRating = clampFloor(winner.EloRating + gain)
	winner.GamesPlayed++
	winner.Wins++
	winner.WinStreak++
	if winner.EloRating > winner.HighestRating {
		winner.HighestRating = winner.EloRating
	}

	loser.EloRating = clampFloor(loser.EloRating - loss)
	loser.GamesPlayed++
	loser.Losses++
	loser.WinStreak = 0

	if err := s.store.Save(ctx, winner, loser); err != nil {
		return nil, nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"winner": winnerID, "loser": loserID, "gain": gain, "loss": loss,
	}).Info("ratings updated")
	return winner, loser, nil
}

// Get exposes a player's current record.
func (s *Service) Get(ctx context.Context, playerID string) (*models.PlayerRating, error) {
	return s.store.Get(ctx, playerID)
}

// Leaderboard returns the top n records by rating.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]models.PlayerRating, error) {
	return s.store.Top(ctx, n)
}

// MemoryStore keeps ratings in a map. Tests and single-node runs only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.PlayerRating
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.PlayerRating)}
}

func (s *MemoryStore) Get(_ context.Context, playerID string) (*models.PlayerRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[playerID]; ok {
		cp := *r
		return &cp, nil
	}
	return &models.PlayerRating{
		PlayerID:      playerID,
		EloRating:     InitialRating,
		HighestRating: InitialRating,
	}, nil
}

func (s *MemoryStore) Save(_ context.Context, winner, loser *models.PlayerRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, l := *winner, *loser
	s.records[winner.PlayerID] = &w
	s.records[loser.PlayerID] = &l
	return nil
}

func (s *MemoryStore) Top(_ context.Context, n int) ([]models.PlayerRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PlayerRating, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	// Insertion sort is fine at leaderboard sizes.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].EloRating > out[j-1].EloRating; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}
