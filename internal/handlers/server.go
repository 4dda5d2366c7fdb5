// Package handlers is the HTTP and websocket gateway: account endpoints,
// the room relay socket, the matchmaking queue socket, and the leaderboard.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/queue"
	"github.com/evindal/stonecast/internal/rating"
	"github.com/evindal/stonecast/internal/room"
)

// Server bundles the services the gateway handlers dispatch into.
type Server struct {
	Registry   *room.Registry
	Matchmaker *queue.Matchmaker
	Ratings    *rating.Service
	Logger     *logrus.Logger
}

// NewServer wires the gateway.
func NewServer(registry *room.Registry, mm *queue.Matchmaker, ratings *rating.Service, logger *logrus.Logger) *Server {
	return &Server{
		Registry:   registry,
		Matchmaker: mm,
		Ratings:    ratings,
		Logger:     logger,
	}
}
