// internal/handlers/queue.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// matchFoundMessage is pushed to a queued client when the matchmaker pairs
// them. The client then connects to /room/ws/{roomCode}.
type matchFoundMessage struct {
	Type       string `json:"type"`
	RoomCode   string `json:"roomCode"`
	OpponentID string `json:"opponentId"`
	Role       string `json:"role"`
}

// QueueWSHandler is the matchmaking socket at /queue/ws. The connection IS
// the queue membership: the player waits while connected, and dropping the
// socket (or sending a "leave" frame) dequeues them. At most one match is
// delivered, after which the socket closes with MatchFoundClosure.
func QueueWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"queue"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "queue" {
			c.Close(BadSubprotocolError, "client must speak the queue subprotocol")
			return
		}

		player, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			logger.Warnf("player resolution failed on queue connect: %v", err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}
		playerID := player.ID.String()

		record, err := s.Ratings.Get(r.Context(), playerID)
		if err != nil {
			logger.WithError(err).Warnf("rating lookup failed for %s", playerID)
			c.Close(websocket.StatusInternalError, "rating store unavailable")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		matches, err := s.Matchmaker.Enqueue(ctx, playerID, player.DisplayName, record.EloRating)
		if err != nil {
			logger.WithError(err).Warnf("enqueue failed for %s", playerID)
			c.Close(websocket.StatusInternalError, "queue unavailable")
			return
		}
		defer func() {
			dequeueCtx, dequeueCancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.Matchmaker.Dequeue(dequeueCtx, playerID); err != nil {
				logger.WithError(err).Warnf("dequeue failed for %s", playerID)
			}
			dequeueCancel()
		}()

		logger.WithFields(logrus.Fields{
			"player": playerID, "rating": record.EloRating, "remote": r.RemoteAddr,
		}).Info("player waiting in queue")

		// The read loop only watches for disconnect or an explicit leave.
		go queueReadPump(ctx, c, cancel, logger, playerID)

		select {
		case <-ctx.Done():
			return
		case match, ok := <-matches:
			if !ok {
				// Loop ended without a match (dequeued elsewhere).
				c.Close(websocket.StatusNormalClosure, "left queue")
				return
			}
			msg := matchFoundMessage{
				Type:       "match_found",
				RoomCode:   match.RoomCode,
				OpponentID: match.OpponentID,
				Role:       string(match.Role),
			}
			data, _ := json.Marshal(msg)
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				logger.Warnf("failed to deliver match to %s: %v", playerID, err)
				return
			}
			logger.WithFields(logrus.Fields{
				"player": playerID, "room": match.RoomCode, "role": match.Role,
			}).Info("match delivered")
			c.Close(MatchFoundClosure, "match found")
		}
	}
}

// queueReadPump drains the socket so pings are answered and a close or an
// explicit {"type":"leave"} frame cancels the wait.
func queueReadPump(ctx context.Context, c *websocket.Conn, cancel context.CancelFunc, logger *logrus.Logger, playerID string) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			if !strings.Contains(err.Error(), "context canceled") {
				closeStatus := websocket.CloseStatus(err)
				if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway &&
					closeStatus != MatchFoundClosure {
					logger.Warnf("queue read error for %s: %v", playerID, err)
				}
			}
			cancel()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &frame); err == nil && frame.Type == "leave" {
			logger.Infof("player %s left the queue", playerID)
			cancel()
			return
		}
	}
}
