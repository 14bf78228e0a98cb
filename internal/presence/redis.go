package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "chatd:presence:"
	onlineSetKey      = "chatd:online"
)

// RedisStore mirrors presence records into Redis so other services can
// read them without touching the database.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

func (s *RedisStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	key := presenceKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "online", online, "lastSeen", at.UnixMilli())
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if online {
		pipe.SAdd(ctx, onlineSetKey, userID)
	} else {
		pipe.SRem(ctx, onlineSetKey, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set presence: %w", err)
	}
	return nil
}

func (s *RedisStore) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	ms, err := s.client.HGet(ctx, presenceKey(userID), "lastSeen").Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis last seen: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// Online returns the user ids the mirror currently lists as online.
func (s *RedisStore) Online(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, onlineSetKey).Result()
}

// ResetOnline clears the online set. A starting daemon owns no
// connections, so anything listed is left over from a previous run.
func (s *RedisStore) ResetOnline(ctx context.Context) error {
	if err := s.client.Del(ctx, onlineSetKey).Err(); err != nil {
		return fmt.Errorf("redis reset online: %w", err)
	}
	return nil
}

// Tee writes to a primary store and a mirror, and reads from the primary.
type Tee struct {
	Primary Store
	Mirror  Store
}

func (t Tee) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	return errors.Join(
		t.Primary.SetPresence(ctx, userID, online, at),
		t.Mirror.SetPresence(ctx, userID, online, at),
	)
}

func (t Tee) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	return t.Primary.LastSeen(ctx, userID)
}

func (t Tee) ResetOnline(ctx context.Context) error {
	return errors.Join(resetOnline(ctx, t.Primary), resetOnline(ctx, t.Mirror))
}
