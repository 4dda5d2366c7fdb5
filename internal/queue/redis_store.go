package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evindal/stonecast/internal/models"
)

// entryTTL expires entries whose owner stopped polling without dequeuing.
const entryTTL = 10 * time.Minute

const (
	waitingIndexKey = "stonecast:queue:waiting"
	entryKeyPrefix  = "stonecast:queue:entry:"
)

// pairScript is the atomic claim. Both entries must still be waiting; the
// script flips both to matched and writes roomCode/matchedWith in the same
// step, so two searchers can never claim the same candidate and a mutual
// A-finds-B / B-finds-A tick resolves to exactly one winner.
var pairScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'waiting' then return 0 end
if redis.call('HGET', KEYS[2], 'status') ~= 'waiting' then return 0 end
redis.call('HSET', KEYS[1], 'status', 'matched', 'roomCode', ARGV[1], 'matchedWith', ARGV[3])
redis.call('HSET', KEYS[2], 'status', 'matched', 'roomCode', ARGV[1], 'matchedWith', ARGV[2])
redis.call('ZREM', KEYS[3], ARGV[2], ARGV[3])
return 1
`)

// deleteIfWaitingScript removes an entry only while it is still waiting, so
// a dequeue cannot erase a match a counterpart committed in between.
var deleteIfWaitingScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'waiting' then
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
end
return 1
`)

// RedisStore keeps queue entries in redis hashes with a sorted-set index
// ordered by join time for the FIFO tie-break.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func entryKey(playerID string) string { return entryKeyPrefix + playerID }

func (s *RedisStore) Upsert(ctx context.Context, e *models.QueueEntry) error {
	key := entryKey(e.PlayerID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"playerId", e.PlayerID,
		"playerName", e.PlayerName,
		"eloRating", e.EloRating,
		"joinedAt", e.JoinedAt.UTC().Format(time.RFC3339Nano),
		"status", string(e.Status),
		"roomCode", e.RoomCode,
		"matchedWith", e.MatchedWith,
	)
	pipe.Expire(ctx, key, entryTTL)
	pipe.ZAdd(ctx, waitingIndexKey, redis.Z{Score: float64(e.JoinedAt.UnixNano()), Member: e.PlayerID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert queue entry %s: %w", e.PlayerID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	vals, err := s.rdb.HGetAll(ctx, entryKey(playerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get queue entry %s: %w", playerID, err)
	}
	if len(vals) == 0 {
		return nil, ErrEntryNotFound
	}
	return entryFromHash(vals), nil
}

func (s *RedisStore) Waiting(ctx context.Context) ([]*models.QueueEntry, error) {
	ids, err := s.rdb.ZRange(ctx, waitingIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	var out []*models.QueueEntry
	for _, id := range ids {
		vals, err := s.rdb.HGetAll(ctx, entryKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("read waiting entry %s: %w", id, err)
		}
		if len(vals) == 0 {
			// Entry expired out from under the index.
			s.rdb.ZRem(ctx, waitingIndexKey, id)
			continue
		}
		e := entryFromHash(vals)
		if e.Status == models.QueueWaiting {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *RedisStore) Pair(ctx context.Context, claimerID, candidateID, roomCode string) error {
	keys := []string{entryKey(claimerID), entryKey(candidateID), waitingIndexKey}
	n, err := pairScript.Run(ctx, s.rdb, keys, roomCode, claimerID, candidateID).Int()
	if err != nil {
		return fmt.Errorf("pair %s with %s: %w", claimerID, candidateID, err)
	}
	if n != 1 {
		return ErrClaimConflict
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, playerID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(playerID))
	pipe.ZRem(ctx, waitingIndexKey, playerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete queue entry %s: %w", playerID, err)
	}
	return nil
}

func (s *RedisStore) DeleteIfWaiting(ctx context.Context, playerID string) error {
	keys := []string{entryKey(playerID), waitingIndexKey}
	if err := deleteIfWaitingScript.Run(ctx, s.rdb, keys, playerID).Err(); err != nil {
		return fmt.Errorf("conditional delete of queue entry %s: %w", playerID, err)
	}
	return nil
}

func entryFromHash(vals map[string]string) *models.QueueEntry {
	rating, _ := strconv.Atoi(vals["eloRating"])
	e := &models.QueueEntry{
		PlayerID:    vals["playerId"],
		PlayerName:  vals["playerName"],
		EloRating:   rating,
		Status:      models.QueueStatus(vals["status"]),
		RoomCode:    vals["roomCode"],
		MatchedWith: vals["matchedWith"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals["joinedAt"]); err == nil {
		e.JoinedAt = ts
	}
	return e
}
