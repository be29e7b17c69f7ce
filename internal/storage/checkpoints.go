package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveCheckpoint 按 session_id upsert 快照
func (s *Storage) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if cp == nil || cp.SessionID == "" {
		return errors.New("checkpoint session id is required")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"node", "step", "state_json", "updated_at"}),
	}).Create(cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *Storage) GetCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var cp Checkpoint
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("checkpoint", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints 只返回元信息，不加载 state_json
func (s *Storage) ListCheckpoints(ctx context.Context, limit int) ([]Checkpoint, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var out []Checkpoint
	err := s.db.WithContext(ctx).
		Model(&Checkpoint{}).
		Select("session_id", "node", "step", "updated_at", "created_at").
		Order("updated_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

func (s *Storage) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Checkpoint{})
	if res.Error != nil {
		return fmt.Errorf("delete checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("checkpoint", sessionID)
	}
	return nil
}

// DeleteCheckpointsBeforeLimited 删除 updated_at 早于 before 的快照，单次最多 limit 行
func (s *Storage) DeleteCheckpointsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	limit = normalizeDeleteLimit(limit)

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&Checkpoint{}).
		Where("updated_at < ?", before).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("session_id", &ids).Error; err != nil {
		return 0, fmt.Errorf("select checkpoints to delete: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("session_id IN ?", ids).Delete(&Checkpoint{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete checkpoints: %w", res.Error)
	}
	return res.RowsAffected, nil
}
