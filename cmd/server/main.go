// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/auth"
	"github.com/evindal/stonecast/internal/cache"
	"github.com/evindal/stonecast/internal/database"
	"github.com/evindal/stonecast/internal/handlers"
	"github.com/evindal/stonecast/internal/middleware"
	"github.com/evindal/stonecast/internal/queue"
	"github.com/evindal/stonecast/internal/rating"
	"github.com/evindal/stonecast/internal/realtime"
	"github.com/evindal/stonecast/internal/room"
)

func main() {
	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// BROKER=memory runs everything in-process for local development. The
	// default wires room state, presence, and the queue through Redis so
	// multiple nodes can share them.
	var (
		broker     realtime.Broker
		roomStore  room.Store
		queueStore queue.Store
	)
	switch cache.GetEnv("BROKER", "redis") {
	case "memory":
		broker = realtime.NewMemoryBroker()
		roomStore = room.NewMemoryStore()
		queueStore = queue.NewMemoryStore()
		logger.Info("using in-memory broker and stores")
	default:
		if err := cache.ConnectRedis(); err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		broker = realtime.NewRedisBroker(cache.Rdb)
		roomStore = room.NewRedisStore(cache.Rdb)
		queueStore = queue.NewRedisStore(cache.Rdb)
	}

	registry := room.NewRegistry(roomStore, broker, logger)
	ratings := rating.NewService(rating.NewPostgresStore(database.DB), logger)
	matchmaker := queue.New(queueStore, registry, logger, queue.DefaultConfig())

	srv := handlers.NewServer(registry, matchmaker, ratings, logger)

	mux := http.NewServeMux()

	// account endpoints
	mux.HandleFunc("/user/create", handlers.CreatePlayerHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	)))

	// matchmaking
	mux.Handle("/queue/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.QueueWSHandler(logger, srv),
	)))

	// ratings
	mux.Handle("/leaderboard", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.LeaderboardHandler(srv),
	)))
	mux.Handle("/rating", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.PlayerRatingHandler(srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
