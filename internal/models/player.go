package models

import "github.com/google/uuid"

// Player is a registered or ephemeral account. Ephemeral players are created
// on first connect without credentials and can later be claimed.
type Player struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	Password    string    `json:"-"`
	DisplayName string    `json:"displayName"`
	Region      string    `json:"region"`
	IsEphemeral bool      `json:"isEphemeral"`
}

// PlayerRating is the durable skill record for one player. It is mutated only
// by the rating store's post-match update, never mid-match.
type PlayerRating struct {
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	EloRating     int    `json:"eloRating"`
	GamesPlayed   int    `json:"gamesPlayed"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	WinStreak     int    `json:"winStreak"`
	HighestRating int    `json:"highestRating"`
}
