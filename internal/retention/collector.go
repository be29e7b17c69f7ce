package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wwwzy/PaperAgent/internal/storage"
)

// artifactPrefix 只清理由代码执行生成的文件
const artifactPrefix = "plot_"

// Collector 周期性清理过期的检查点、审计记录和图表文件
type Collector struct {
	cfg Config

	store *storage.Storage
}

func NewCollector(store *storage.Storage, cfg Config) (*Collector, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Collector{store: store, cfg: cfg.withDefaults()}, nil
}

func (c *Collector) Run(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}
	c.cfg = c.cfg.withDefaults()

	if err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 以 now 为基准执行一轮清理，CLI 的手动清理命令也走这里
func (c *Collector) RunOnce(ctx context.Context, now time.Time) error {
	if c == nil || c.store == nil {
		return errors.New("retention collector not initialized")
	}

	tasks := []func(context.Context) error{
		func(ctx context.Context) error {
			return c.deleteCheckpointsBefore(ctx, now.Add(-c.cfg.KeepCheckpoints))
		},
		func(ctx context.Context) error {
			return c.deleteAuditBefore(ctx, now.Add(-c.cfg.KeepAudit))
		},
	}
	if c.cfg.ExportDir != "" {
		tasks = append(tasks, func(ctx context.Context) error {
			return c.deleteArtifactsBefore(ctx, now.Add(-c.cfg.KeepArtifacts))
		})
	}

	workers := c.cfg.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan func(context.Context) error)
	errs := make(chan error, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
				}
			}
		}()
	}

	for _, t := range tasks {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			close(errs)
			return ctx.Err()
		case jobs <- t:
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			c.cfg.OnError(err)
			return err
		}
	}
	return nil
}

func (c *Collector) deleteCheckpointsBefore(ctx context.Context, before time.Time) error {
	return c.drain(ctx, func(ctx context.Context) (int64, error) {
		return c.store.DeleteCheckpointsBeforeLimited(ctx, before, c.cfg.BatchRows)
	})
}

func (c *Collector) deleteAuditBefore(ctx context.Context, before time.Time) error {
	return c.drain(ctx, func(ctx context.Context) (int64, error) {
		return c.store.DeleteAuditRecordsBeforeLimited(ctx, before, c.cfg.BatchRows)
	})
}

func (c *Collector) deleteArtifactsBefore(ctx context.Context, before time.Time) error {
	return c.drain(ctx, func(ctx context.Context) (int64, error) {
		return c.deleteArtifactBatch(ctx, before)
	})
}

// deleteArtifactBatch 删除至多 BatchRows 个过期文件，返回删除数量
func (c *Collector) deleteArtifactBatch(ctx context.Context, before time.Time) (int64, error) {
	entries, err := os.ReadDir(c.cfg.ExportDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read export dir: %w", err)
	}
	var deleted int64
	for _, e := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(c.cfg.ExportDir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return deleted, fmt.Errorf("remove artifact %s: %w", e.Name(), err)
		}
		deleted++
		if deleted >= int64(c.cfg.BatchRows) {
			break
		}
	}
	return deleted, nil
}

// drain 反复执行分批删除，直到某一批没有删除任何内容
func (c *Collector) drain(ctx context.Context, batch func(context.Context) (int64, error)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		affected, err := batch(ctx)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		if err := c.sleepIdle(ctx); err != nil {
			return err
		}
	}
}

func (c *Collector) sleepIdle(ctx context.Context) error {
	if c.cfg.IdleSleep <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
