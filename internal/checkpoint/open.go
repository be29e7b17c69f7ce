package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/wwwzy/PaperAgent/internal/storage"
)

// Open 根据配置选择后端，返回的 Store 已经做了按会话串行化
func Open(ctx context.Context, cfg Config, store *storage.Storage) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		s, err := NewSQLStore(store)
		if err != nil {
			return nil, err
		}
		return Serialized(s), nil
	case "redis":
		s := NewRedisStore(cfg)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return Serialized(s), nil
	case "memory":
		return Serialized(NewMemoryStore()), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
