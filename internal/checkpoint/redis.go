package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "paperagent:checkpoint:"

// RedisStore 每个会话一个 key，额外维护一个 set 作为索引
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(cfg Config) *RedisStore {
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return errors.New("session id is required")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), snap.SessionID).Err(); err != nil {
		return fmt.Errorf("index checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if err := s.client.SRem(ctx, s.indexKey(), sessionID).Err(); err != nil {
		return fmt.Errorf("update checkpoint index: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// List 顺带清理索引中已过期（TTL）的会话
func (s *RedisStore) List(ctx context.Context, limit int) ([]Snapshot, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			_ = s.client.SRem(ctx, s.indexKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		snap.State = nil
		out = append(out, *snap)
	}
	sortByUpdatedDesc(out)
	return applyLimit(out, limit), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}
