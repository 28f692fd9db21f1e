package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Naveenravi07/mediasoup-video-stream/internal/domain"
)

// RedisStore keeps waiting entries as JSON values with a TTL. The TTL is the
// bounded wait: an abandoned entry expires on its own instead of growing the
// queue forever.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func waitingKey(room domain.RoomID, user domain.UserID) string {
	return fmt.Sprintf("waiting:%s:%s", room, user)
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return s.rdb.Set(ctx, waitingKey(e.Room, e.User), payload, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, room domain.RoomID, user domain.UserID) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, waitingKey(room, user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal entry: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) List(ctx context.Context, room domain.RoomID) ([]Entry, error) {
	keys, err := s.roomKeys(ctx, room)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry %s: %w", key, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	return s.rdb.Del(ctx, waitingKey(room, user)).Err()
}

func (s *RedisStore) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	keys, err := s.roomKeys(ctx, room)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) roomKeys(ctx context.Context, room domain.RoomID) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, fmt.Sprintf("waiting:%s:*", room), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan waiting keys: %w", err)
	}
	return keys, nil
}
