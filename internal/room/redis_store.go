package room

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evindal/stonecast/internal/models"
)

// roomTTL garbage-collects rooms whose participants all vanished without a
// clean teardown. The TTL is refreshed on every state change.
const roomTTL = 2 * time.Hour

// RedisStore keeps room rows in redis hashes. The guest slot is filled with
// HSETNX so two concurrent joiners cannot both win it.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func roomKey(code string) string { return "stonecast:room:" + code }

func (s *RedisStore) Create(ctx context.Context, rm *models.Room) error {
	key := roomKey(rm.Code)
	ok, err := s.rdb.HSetNX(ctx, key, "hostId", rm.HostID).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", rm.Code, err)
	}
	if !ok {
		return ErrCodeTaken
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key,
		"code", rm.Code,
		"status", string(rm.Status),
		"createdAt", rm.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create room %s: %w", rm.Code, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (*models.Room, error) {
	vals, err := s.rdb.HGetAll(ctx, roomKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	if len(vals) == 0 {
		return nil, ErrRoomNotFound
	}
	rm := &models.Room{
		Code:    vals["code"],
		HostID:  vals["hostId"],
		GuestID: vals["guestId"],
		Status:  models.RoomStatus(vals["status"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["createdAt"]); err == nil {
		rm.CreatedAt = ts
	}
	return rm, nil
}

func (s *RedisStore) SetGuest(ctx context.Context, code, guestID string) error {
	key := roomKey(code)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("set guest on %s: %w", code, err)
	}
	if exists == 0 {
		return ErrRoomNotFound
	}
	ok, err := s.rdb.HSetNX(ctx, key, "guestId", guestID).Result()
	if err != nil {
		return fmt.Errorf("set guest on %s: %w", code, err)
	}
	if !ok {
		return ErrRoomFull
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "status", string(models.RoomReady))
	pipe.Expire(ctx, key, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set guest on %s: %w", code, err)
	}
	return nil
}

func (s *RedisStore) SetStatus(ctx context.Context, code string, status models.RoomStatus) error {
	key := roomKey(code)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("set status on %s: %w", code, err)
	}
	if exists == 0 {
		return ErrRoomNotFound
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "status", string(status))
	pipe.Expire(ctx, key, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set status on %s: %w", code, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, roomKey(code)).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	return nil
}
