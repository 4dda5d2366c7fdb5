package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evindal/stonecast/internal/auth"
	"github.com/evindal/stonecast/internal/models"
)

// CreatePlayer inserts a new account, hashing the password first. Ephemeral
// players pass an empty password and connect with their token alone.
func CreatePlayer(ctx context.Context, player *models.Player) error {
	if player.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate player id: %w", err)
		}
		player.ID = id
	}

	if !player.IsEphemeral {
		hash, err := auth.HashPassword(player.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		player.Password = hash
	}

	q := `INSERT INTO players (id, email, password, display_name, region, is_ephemeral)
	      VALUES ($1, $2, $3, $4, $5, $6)`

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			player.ID, player.Email, player.Password, player.DisplayName,
			player.Region, player.IsEphemeral,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

func GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error) {
	var p models.Player
	q := `
	SELECT id, email, password, display_name, region, is_ephemeral
	FROM players
	WHERE email=$1
	`
	err := DB.QueryRow(ctx, q, email).Scan(
		&p.ID, &p.Email, &p.Password, &p.DisplayName, &p.Region, &p.IsEphemeral,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	q := `
	SELECT id, email, password, display_name, region, is_ephemeral
	FROM players
	WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Email, &p.Password, &p.DisplayName, &p.Region, &p.IsEphemeral,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AuthenticatePlayer checks credentials and returns a signed session token.
func AuthenticatePlayer(ctx context.Context, email, password string) (string, error) {
	player, err := GetPlayerByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("player not found or db error: %w", err)
	}

	match, err := auth.VerifyPassword(password, player.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateToken(player.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	return token, nil
}
