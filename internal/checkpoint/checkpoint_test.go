package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/storage"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Save(ctx, Snapshot{SessionID: "a", Node: "planner", Step: 1, State: []byte(`{"n":1}`)}))
	require.NoError(t, s.Save(ctx, Snapshot{SessionID: "a", Node: "agent", Step: 2, State: []byte(`{"n":2}`)}))
	require.NoError(t, s.Save(ctx, Snapshot{SessionID: "b", Node: "agent", Step: 1, State: []byte(`{}`), UpdatedAt: time.Now().Add(-time.Hour).UTC()}))

	snap, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "agent", snap.Node)
	assert.Equal(t, 2, snap.Step)
	assert.JSONEq(t, `{"n":2}`, string(snap.State))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].SessionID)
	assert.Empty(t, list[0].State)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.True(t, errors.Is(s.Delete(ctx, "a"), ErrNotFound))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, Serialized(NewMemoryStore()))
}

func TestSQLStore(t *testing.T) {
	st, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "cp.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewSQLStore(st)
	require.NoError(t, err)
	exerciseStore(t, Serialized(s))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PAPERAGENT_TEST_REDIS")
	if addr == "" {
		t.Skip("PAPERAGENT_TEST_REDIS not set")
	}
	s := NewRedisStore(Config{RedisAddr: addr, RedisPrefix: fmt.Sprintf("paperagent:test:%d:", time.Now().UnixNano()), TTL: time.Minute})
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, Serialized(s))
}

// countingStore 检测同一 key 上是否出现并发写
type countingStore struct {
	*MemoryStore
	mu      sync.Mutex
	active  map[string]int
	overlap bool
}

func (c *countingStore) Save(ctx context.Context, snap Snapshot) error {
	c.mu.Lock()
	c.active[snap.SessionID]++
	if c.active[snap.SessionID] > 1 {
		c.overlap = true
	}
	c.mu.Unlock()

	time.Sleep(time.Millisecond)
	err := c.MemoryStore.Save(ctx, snap)

	c.mu.Lock()
	c.active[snap.SessionID]--
	c.mu.Unlock()
	return err
}

func TestSerializedWritesPerKey(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore(), active: map[string]int{}}
	s := Serialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Save(context.Background(), Snapshot{SessionID: "same", Step: i})
		}(i)
	}
	wg.Wait()
	assert.False(t, inner.overlap)
	assert.Same(t, s, Serialized(s))
}

func TestSerializedLocksAreBounded(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore(), active: map[string]int{}}
	s := Serialized(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i%50)
			_ = s.Save(ctx, Snapshot{SessionID: id, Step: i})
		}(i)
	}
	wg.Wait()
	assert.False(t, inner.overlap)

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("s-%d", i)
		got := stripeOf(id)
		assert.Equal(t, got, stripeOf(id))
		assert.GreaterOrEqual(t, got, 0)
		assert.Less(t, got, lockStripes)

		require.NoError(t, s.Delete(ctx, id))
		_, err := s.Load(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}
