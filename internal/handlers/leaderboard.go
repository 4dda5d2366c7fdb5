package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// LeaderboardHandler returns the top players by rating. Optional ?limit=N,
// capped at 100.
func LeaderboardHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLeaderboardSize
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			if n > maxLeaderboardSize {
				n = maxLeaderboardSize
			}
			limit = n
		}

		records, err := s.Ratings.Leaderboard(r.Context(), limit)
		if err != nil {
			s.Logger.WithError(err).Warn("leaderboard query failed")
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}
}

// PlayerRatingHandler returns one player's rating record. Unknown players get
// the seeded default rather than a 404, matching what the matchmaker sees.
func PlayerRatingHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("player")
		if playerID == "" {
			http.Error(w, "missing player", http.StatusBadRequest)
			return
		}

		record, err := s.Ratings.Get(r.Context(), playerID)
		if err != nil {
			s.Logger.WithError(err).Warnf("rating lookup failed for %s", playerID)
			http.Error(w, "rating unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(record)
	}
}
