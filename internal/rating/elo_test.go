package rating

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evindal/stonecast/internal/models"
)

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-9)
	// 400 points of advantage is ~10:1 odds in the classic formula.
	assert.InDelta(t, 10.0/11.0, ExpectedScore(1400, 1000), 1e-9)
	assert.InDelta(t, 1.0/11.0, ExpectedScore(1000, 1400), 1e-9)
}

func TestEqualRatingsMoveSixteen(t *testing.T) {
	assert.Equal(t, 16, WinnerDelta(1200, 1200))
	assert.Equal(t, 16, LoserDelta(1200, 1200))
}

func TestUpsetDeltasAreAsymmetric(t *testing.T) {
	// Underdog at 1000 beats the favorite at 1400. The winner's gain comes
	// from the winner's expectation, the loser's loss from the loser's own,
	// so the two magnitudes differ.
	gain := WinnerDelta(1000, 1400)
	loss := LoserDelta(1000, 1400)
	assert.Equal(t, 29, gain)
	assert.Equal(t, 3, loss)
	assert.NotEqual(t, gain, loss)
}

func TestDeltasAreRoundedNotTruncated(t *testing.T) {
	// Spot check against the raw formula at an uneven gap.
	raw := KFactor * (1 - ExpectedScore(1000, 1100))
	assert.Equal(t, int(math.Round(raw)), WinnerDelta(1000, 1100))
}

func TestFavoriteWinGainsShrinkWithAdvantage(t *testing.T) {
	prev := math.MaxInt
	for _, advantage := range []int{0, 100, 200, 400, 800} {
		gain := WinnerDelta(1200+advantage, 1200)
		assert.LessOrEqual(t, gain, prev, "advantage %d", advantage)
		prev = gain
	}
}

func newTestService() *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewService(NewMemoryStore(), logger)
}

func TestUpdateSeedsUnknownPlayers(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	winner, loser, err := svc.Update(ctx, "p-w", "p-l")
	require.NoError(t, err)

	assert.Equal(t, InitialRating+16, winner.EloRating)
	assert.Equal(t, InitialRating-16, loser.EloRating)
	assert.Equal(t, 1, winner.GamesPlayed)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, loser.Losses)
}

func TestUpdateTracksStreaksAndPeak(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.Update(ctx, "p-w", "p-l")
		require.NoError(t, err)
	}
	winner, err := svc.Get(ctx, "p-w")
	require.NoError(t, err)
	assert.Equal(t, 3, winner.WinStreak)
	assert.Equal(t, winner.EloRating, winner.HighestRating)

	// One loss resets the streak but not the peak.
	_, _, err = svc.Update(ctx, "p-l", "p-w")
	require.NoError(t, err)
	winner, err = svc.Get(ctx, "p-w")
	require.NoError(t, err)
	assert.Equal(t, 0, winner.WinStreak)
	assert.Greater(t, winner.HighestRating, winner.EloRating)
}

func TestRatingNeverDropsBelowFloor(t *testing.T) {
	svc := newTestService()
	store := svc.store.(*MemoryStore)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx,
		&models.PlayerRating{PlayerID: "p-w", EloRating: 1000, HighestRating: 1000},
		&models.PlayerRating{PlayerID: "p-l", EloRating: Floor + 5, HighestRating: 1000},
	))

	_, loser, err := svc.Update(ctx, "p-w", "p-l")
	require.NoError(t, err)
	assert.Equal(t, Floor, loser.EloRating)
}

func TestLeaderboardOrder(t *testing.T) {
	svc := newTestService()
	store := svc.store.(*MemoryStore)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx,
		&models.PlayerRating{PlayerID: "p-a", PlayerName: "Anna", EloRating: 1400},
		&models.PlayerRating{PlayerID: "p-b", PlayerName: "Bjorn", EloRating: 900},
	))
	require.NoError(t, store.Save(ctx,
		&models.PlayerRating{PlayerID: "p-c", PlayerName: "Caro", EloRating: 1700},
		&models.PlayerRating{PlayerID: "p-d", PlayerName: "Dag", EloRating: 1100},
	))

	top, err := svc.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "p-c", top[0].PlayerID)
	assert.Equal(t, "p-a", top[1].PlayerID)
	assert.Equal(t, "p-d", top[2].PlayerID)
}
