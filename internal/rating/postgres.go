package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evindal/stonecast/internal/models"
)

// PostgresStore persists ratings in the player_ratings table and appends a
// row to rating_history for every settled match.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (*models.PlayerRating, error) {
	q := `
	SELECT player_id, player_name, elo_rating, games_played, wins, losses,
	       win_streak, highest_rating
	FROM player_ratings
	WHERE player_id = $1
	`
	var r models.PlayerRating
	err := s.pool.QueryRow(ctx, q, playerID).Scan(
		&r.PlayerID, &r.PlayerName, &r.EloRating, &r.GamesPlayed,
		&r.Wins, &r.Losses, &r.WinStreak, &r.HighestRating,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.PlayerRating{
			PlayerID:      playerID,
			EloRating:     InitialRating,
			HighestRating: InitialRating,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rating for %s: %w", playerID, err)
	}
	return &r, nil
}

// Save writes both sides of a match in one transaction so a crash cannot
// credit the winner without debiting the loser.
func (s *PostgresStore) Save(ctx context.Context, winner, loser *models.PlayerRating) error {
	upsert := `
	INSERT INTO player_ratings
		(player_id, player_name, elo_rating, games_played, wins, losses,
		 win_streak, highest_rating)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (player_id) DO UPDATE SET
		player_name = EXCLUDED.player_name,
		elo_rating = EXCLUDED.elo_rating,
		games_played = EXCLUDED.games_played,
		wins = EXCLUDED.wins,
		losses = EXCLUDED.losses,
		win_streak = EXCLUDED.win_streak,
		highest_rating = EXCLUDED.highest_rating
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, r := range []*models.PlayerRating{winner, loser} {
			if _, err := tx.Exec(ctx, upsert,
				r.PlayerID, r.PlayerName, r.EloRating, r.GamesPlayed,
				r.Wins, r.Losses, r.WinStreak, r.HighestRating,
			); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO rating_history (winner_id, loser_id, winner_rating, loser_rating)
			VALUES ($1, $2, $3, $4)
		`, winner.PlayerID, loser.PlayerID, winner.EloRating, loser.EloRating)
		return err
	})
	if err != nil {
		return fmt.Errorf("save match ratings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Top(ctx context.Context, n int) ([]models.PlayerRating, error) {
	q := `
	SELECT player_id, player_name, elo_rating, games_played, wins, losses,
	       win_streak, highest_rating
	FROM player_ratings
	ORDER BY elo_rating DESC
	LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerRating
	for rows.Next() {
		var r models.PlayerRating
		if err := rows.Scan(
			&r.PlayerID, &r.PlayerName, &r.EloRating, &r.GamesPlayed,
			&r.Wins, &r.Losses, &r.WinStreak, &r.HighestRating,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
