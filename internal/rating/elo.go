// Package rating maintains each player's durable Elo record. Ratings change
// only here, once per finished match; nothing mutates them mid-game.
package rating

import "math"

const (
	// KFactor scales how much a single match moves a rating.
	KFactor = 32

	// Floor is the minimum rating; no loss drops a player below it.
	Floor = 100

	// InitialRating seeds a player's first record.
	InitialRating = 1000
)

// ExpectedScore is the classic Elo win expectation for a player against an
// opponent: 1 / (1 + 10^((opponent − rating)/400)).
func ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// WinnerDelta is the winner's gain: round(K × (1 − expectedWinnerScore)).
func WinnerDelta(winnerRating, loserRating int) int {
	return int(math.Round(KFactor * (1 - ExpectedScore(winnerRating, loserRating))))
}

// LoserDelta is the loser's loss, computed independently from the loser's
// own expected score: round(K × (1 − expectedLoserScore)). The two deltas
// are therefore not mirror images of each other; an upset winner gains
// little while the upset loser pays the full complement. That asymmetry is
// deliberate and covered by tests.
func LoserDelta(winnerRating, loserRating int) int {
	return int(math.Round(KFactor * (1 - ExpectedScore(loserRating, winnerRating))))
}

// clampFloor applies the rating floor.
func clampFloor(rating int) int {
	if rating < Floor {
		return Floor
	}
	return rating
}
