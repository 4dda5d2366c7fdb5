// internal/handlers/room.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/evindal/stonecast/internal/models"
	"github.com/evindal/stonecast/internal/protocol"
	"github.com/evindal/stonecast/internal/room"
)

// CreateRoomHandler provisions a private room for the calling player and
// returns its code. The host then connects to /room/ws/{code} and shares the
// code out of band.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			s.Logger.Warnf("player resolution failed on room create: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		rm, err := s.Registry.Allocate(r.Context(), player.ID.String())
		if err != nil {
			s.Logger.WithError(err).Warn("room allocation failed")
			http.Error(w, "could not create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"code": rm.Code})
	}
}

// clientMessage is the inbound frame shape on the room socket.
type clientMessage struct {
	Type    protocol.EventType     `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RoomWSHandler is the relay socket at /room/ws/{code}. The room's creator
// and matchmade players attach to their assigned seat; anyone else is
// admitted as the guest after the host's presence is confirmed.
func RoomWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		code := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		if idx := strings.Index(code, "/"); idx != -1 {
			code = code[:idx]
		}
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"relay"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "relay" {
			c.Close(BadSubprotocolError, "client must speak the relay subprotocol")
			return
		}

		player, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			logger.Warnf("player resolution failed for room %s: %v", code, err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		sess, err := s.attachPlayer(r.Context(), code, player.ID.String(), player.DisplayName, player.Region)
		if err != nil {
			switch {
			case errors.Is(err, room.ErrInvalidCode):
				c.Close(InvalidRoomCodeError, "malformed room code")
			case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomFull):
				c.Close(RoomUnavailableError, err.Error())
			default:
				logger.WithError(err).Warnf("attach failed for room %s", code)
				c.Close(websocket.StatusInternalError, "could not join room")
			}
			return
		}
		defer sess.Close()

		logger.Infof("Player %v (%s) connected to room %s as %s", player.ID, remoteAddr, sess.Room.Code, sess.Self.Role)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// errs carries relay rejections back to this client only.
		errs := make(chan string, 4)

		go roomWritePump(ctx, c, sess, errs, logger)
		roomReadPump(ctx, c, s, sess, errs, logger)

		logger.Infof("Player %v read pump exited for room %s", player.ID, sess.Room.Code)
	}
}

// attachPlayer seats the player. A player already on the room row (creator
// or matchmade) reattaches to their seat; everyone else goes through the
// guest admission path with its host-presence wait.
func (s *Server) attachPlayer(ctx context.Context, code, playerID, name, region string) (*room.Session, error) {
	sess, err := s.Registry.AttachMatched(ctx, code, playerID, name, region)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, room.ErrInvalidCode) {
		return nil, err
	}
	return s.Registry.Join(ctx, code, playerID, name, region)
}

// roomReadPump relays inbound frames into the room. Authority violations and
// unknown event types bounce back to the sender without touching the room;
// relayed lifecycle events additionally move the room row and settle ratings.
func roomReadPump(ctx context.Context, c *websocket.Conn, s *Server, sess *room.Session, errs chan<- string, logger *logrus.Logger) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("Room %s: read error for %s: %v", sess.Room.Code, sess.Self.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var in clientMessage
		if err := json.Unmarshal(msg, &in); err != nil {
			logger.Warnf("Room %s: invalid json from %s: %v", sess.Room.Code, sess.Self.ID, err)
			pushErr(errs, "invalid JSON format")
			continue
		}

		if err := sess.Send(ctx, in.Type, in.Payload); err != nil {
			switch {
			case errors.Is(err, protocol.ErrNotAuthorized):
				pushErr(errs, "event is host-only")
			case errors.Is(err, protocol.ErrUnknownEvent):
				pushErr(errs, "unknown event type")
			default:
				logger.Warnf("Room %s: publish failed for %s: %v", sess.Room.Code, sess.Self.ID, err)
				pushErr(errs, "event delivery failed")
			}
			continue
		}
		s.afterEvent(ctx, sess, in)
	}
}

// afterEvent applies the lifecycle side effects of a successfully relayed
// event. Send already validated authority, so game_start and game_over here
// always come from the host.
func (s *Server) afterEvent(ctx context.Context, sess *room.Session, in clientMessage) {
	switch in.Type {
	case protocol.EventGameStart:
		if err := s.Registry.MarkStatus(ctx, sess.Room.Code, models.RoomInProgress); err != nil {
			s.Logger.WithError(err).Warnf("could not mark room %s in progress", sess.Room.Code)
		}
	case protocol.EventGameOver:
		s.settleMatch(ctx, sess, in.Payload)
	case protocol.EventRematchAccept:
		// A rematch reuses the room under the same code.
		if err := s.Registry.MarkStatus(ctx, sess.Room.Code, models.RoomReady); err != nil {
			s.Logger.WithError(err).Warnf("could not reset room %s for rematch", sess.Room.Code)
		}
	}
}

// settleMatch closes out the room and applies the post-match rating update.
// The game_over payload names the winning seat; seats map to player ids
// through the room row, which carries both once the guest is admitted.
func (s *Server) settleMatch(ctx context.Context, sess *room.Session, payload map[string]interface{}) {
	if err := s.Registry.MarkStatus(ctx, sess.Room.Code, models.RoomCompleted); err != nil {
		s.Logger.WithError(err).Warnf("could not mark room %s completed", sess.Room.Code)
	}

	winnerRole, _ := payload["winner"].(string)
	if winnerRole != string(models.RoleHost) && winnerRole != string(models.RoleGuest) {
		s.Logger.Warnf("game_over for room %s without a winner seat, ratings unchanged", sess.Room.Code)
		return
	}
	rm, err := s.Registry.Lookup(ctx, sess.Room.Code)
	if err != nil {
		s.Logger.WithError(err).Warnf("room %s lookup failed, ratings unchanged", sess.Room.Code)
		return
	}
	if rm.HostID == "" || rm.GuestID == "" {
		s.Logger.Warnf("room %s ended without both seats filled, ratings unchanged", sess.Room.Code)
		return
	}

	winnerID, loserID := rm.HostID, rm.GuestID
	if winnerRole == string(models.RoleGuest) {
		winnerID, loserID = rm.GuestID, rm.HostID
	}
	if _, _, err := s.Ratings.Update(ctx, winnerID, loserID); err != nil {
		s.Logger.WithError(err).Warnf("rating update failed for room %s", sess.Room.Code)
	}
}

// roomWritePump serializes all outbound traffic: opponent events, relay
// errors, and keepalive pings.
func roomWritePump(ctx context.Context, c *websocket.Conn, sess *room.Session, errs <-chan string, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sess.Events():
			if !ok {
				// Session torn down; tell the client the room is gone.
				c.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
			if !writeJSON(ctx, c, env, logger, sess.Room.Code) {
				return
			}
		case msg := <-errs:
			frame := map[string]interface{}{"type": "error", "message": msg}
			if !writeJSON(ctx, c, frame, logger, sess.Room.Code) {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Room %s: ping failed for %s, assuming disconnect", sess.Room.Code, sess.Self.ID)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, c *websocket.Conn, v interface{}, logger *logrus.Logger, code string) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warnf("Room %s: failed to marshal outgoing msg: %v", code, err)
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = c.Write(writeCtx, websocket.MessageText, data)
	cancel()
	if err != nil {
		logger.Warnf("Room %s: websocket write failed: %v", code, err)
		return false
	}
	return true
}

func pushErr(errs chan<- string, msg string) {
	select {
	case errs <- msg:
	default:
	}
}
