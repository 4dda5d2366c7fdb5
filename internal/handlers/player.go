package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evindal/stonecast/internal/auth"
	"github.com/evindal/stonecast/internal/database"
	"github.com/evindal/stonecast/internal/models"
)

// EnsureEphemeralPlayer resolves the connecting player from the session
// cookie, creating an ephemeral account (and setting the cookie) when the
// player arrives without one. Curling clients can play their first match
// without ever seeing a signup form.
func EnsureEphemeralPlayer(w http.ResponseWriter, r *http.Request) (*models.Player, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "session_token=") {
		token := extractCookieToken(cookieHeader, "session_token")
		playerIDStr, err := auth.VerifyToken(token)
		if err == nil {
			playerID, parseErr := uuid.Parse(playerIDStr)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid player id in token: %w", parseErr)
			}
			player, dbErr := database.GetPlayerByID(r.Context(), playerID)
			if dbErr != nil {
				return nil, fmt.Errorf("player lookup failed: %w", dbErr)
			}
			return player, nil
		}
		// Fall through: stale or invalid token gets a fresh ephemeral identity.
	}

	ephemeral := models.Player{
		DisplayName: "Guest",
		Region:      r.URL.Query().Get("region"),
		IsEphemeral: true,
	}
	if err := database.CreatePlayer(context.Background(), &ephemeral); err != nil {
		return nil, fmt.Errorf("failed to create ephemeral player: %w", err)
	}
	token, err := auth.CreateToken(ephemeral.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create ephemeral token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return &ephemeral, nil
}

// CreatePlayerHandler registers a full account.
func CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Region      string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	player := models.Player{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Region:      req.Region,
		IsEphemeral: false,
	}

	if err := database.CreatePlayer(r.Context(), &player); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		http.Error(w, "error creating player", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(player)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler checks credentials and returns a session token, also set as
// an HttpOnly cookie.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := database.AuthenticatePlayer(context.Background(), req.Email, req.Password)
	if err != nil {
		log.Printf("failed to authenticate player: %v", err)
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})

	resp := loginResponse{Token: token}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
		return
	}
}
