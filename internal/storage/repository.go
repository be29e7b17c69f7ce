package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

// ErrNotFound 所有“记录不存在”错误都可以用 errors.Is(err, ErrNotFound) 判断
var ErrNotFound = errors.New("not found")

var errNotInitialized = errors.New("storage not initialized")

// AuditQuery 用于查询审计记录的过滤条件，零值字段不参与过滤。
type AuditQuery struct {
	// TraceID 精确匹配会话 ID。
	TraceID string
	// Action 精确匹配工具名。
	Action string
	Status string
	// From/To 过滤 CreatedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	Desc  bool
}

func (s *Storage) InsertAuditRecord(ctx context.Context, rec *AuditRecord) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if rec == nil {
		return errors.New("audit record is nil")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *Storage) QueryAuditRecords(ctx context.Context, q AuditQuery) ([]AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	limit := normalizeLimit(q.Limit)
	db := s.db.WithContext(ctx).Model(&AuditRecord{})
	if q.TraceID != "" {
		db = db.Where("trace_id = ?", q.TraceID)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at <= ?", *q.To)
	}
	if q.Desc {
		db = db.Order("created_at DESC")
	} else {
		db = db.Order("created_at ASC")
	}
	db = db.Limit(limit)

	var out []AuditRecord
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	return out, nil
}

type AuditUpdate struct {
	Status       *string
	ResultJSON   *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (s *Storage) UpdateAuditRecord(ctx context.Context, id uint64, up AuditUpdate) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	updates := make(map[string]interface{})
	if up.Status != nil {
		updates["status"] = *up.Status
	}
	if up.ResultJSON != nil {
		updates["result_json"] = *up.ResultJSON
	}
	if up.ErrorMessage != nil {
		updates["error_message"] = *up.ErrorMessage
	}
	if up.FinishedAt != nil {
		updates["finished_at"] = *up.FinishedAt
	}

	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&AuditRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update audit record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("audit record", id)
	}
	return nil
}

// DeleteAuditRecordsBeforeLimited 删除 created_at 早于 before 的审计记录，单次最多 limit 行
func (s *Storage) DeleteAuditRecordsBeforeLimited(ctx context.Context, before time.Time, limit int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	limit = normalizeDeleteLimit(limit)

	var ids []uint64
	if err := s.db.WithContext(ctx).
		Model(&AuditRecord{}).
		Where("created_at < ?", before).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("select audit records to delete: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&AuditRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}

type notFoundError struct {
	Entity string
	ID     any
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Entity, e.ID)
}

func (e notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity string, id any) error {
	return notFoundError{Entity: entity, ID: id}
}

// TableCounts 为各表行数，storage info 命令使用
type TableCounts struct {
	Papers       int64
	Checkpoints  int64
	AuditRecords int64
}

func (s *Storage) CountRows(ctx context.Context) (TableCounts, error) {
	if s == nil || s.db == nil {
		return TableCounts{}, errNotInitialized
	}
	var out TableCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&Paper{}).Count(&out.Papers).Error; err != nil {
		return out, fmt.Errorf("count papers: %w", err)
	}
	if err := db.Model(&Checkpoint{}).Count(&out.Checkpoints).Error; err != nil {
		return out, fmt.Errorf("count checkpoints: %w", err)
	}
	if err := db.Model(&AuditRecord{}).Count(&out.AuditRecords).Error; err != nil {
		return out, fmt.Errorf("count audit records: %w", err)
	}
	return out, nil
}
