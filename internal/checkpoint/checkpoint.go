package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound 表示会话没有任何快照
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot 是一次提交后的状态快照，State 为调用方序列化后的字节
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Node      string    `json:"node"`
	Step      int       `json:"step"`
	State     []byte    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 按 session id 持久化快照，每个会话只保留最新一份
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	// List 返回快照元信息（不含 State），按更新时间倒序
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

type Config struct {
	Backend       string        `mapstructure:"backend"` // sqlite | redis | memory
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// lockStripes 为串行化使用的锁数量，会话按 id 哈希到固定的锁上，
// 长时间运行的服务不会随会话数增长而累积锁。
const lockStripes = 64

// Serialized 包装任意 Store，使同一 session 的写操作串行执行。
// 不同 session 只在哈希到同一把锁时才会互相等待。
func Serialized(inner Store) Store {
	if inner == nil {
		return nil
	}
	if _, ok := inner.(*serializedStore); ok {
		return inner
	}
	return &serializedStore{inner: inner}
}

type serializedStore struct {
	inner Store
	locks [lockStripes]sync.Mutex
}

func stripeOf(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % lockStripes)
}

func (s *serializedStore) lock(sessionID string) func() {
	mu := &s.locks[stripeOf(sessionID)]
	mu.Lock()
	return mu.Unlock
}

func (s *serializedStore) Save(ctx context.Context, snap Snapshot) error {
	unlock := s.lock(snap.SessionID)
	defer unlock()
	return s.inner.Save(ctx, snap)
}

func (s *serializedStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.inner.Load(ctx, sessionID)
}

func (s *serializedStore) Delete(ctx context.Context, sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()
	return s.inner.Delete(ctx, sessionID)
}

func (s *serializedStore) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.inner.List(ctx, limit)
}

// Close 释放底层连接（目前只有 redis 需要）
func (s *serializedStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MemoryStore 进程内实现，用于测试与不需要持久化的场景
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return errors.New("session id is required")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	snap.State = append([]byte(nil), snap.State...)
	m.mu.Lock()
	m.snaps[snap.SessionID] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snaps[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	snap.State = append([]byte(nil), snap.State...)
	return &snap, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	delete(m.snaps, sessionID)
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Snapshot, error) {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		s.State = nil
		out = append(out, s)
	}
	m.mu.RUnlock()
	sortByUpdatedDesc(out)
	return applyLimit(out, limit), nil
}

func sortByUpdatedDesc(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
}

func applyLimit(snaps []Snapshot, limit int) []Snapshot {
	if limit > 0 && len(snaps) > limit {
		return snaps[:limit]
	}
	return snaps
}
