package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

func (s *Storage) InsertPaper(ctx context.Context, p *Paper) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if p == nil || p.ID == "" {
		return errors.New("paper id is required")
	}
	if p.UploadedAt.IsZero() {
		p.UploadedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = PaperStatusProcessing
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert paper: %w", err)
	}
	return nil
}

type PaperUpdate struct {
	Title        *string
	Pages        *int
	Chunks       *int
	Tokens       *int
	Status       *string
	ErrorMessage *string
}

func (s *Storage) UpdatePaper(ctx context.Context, id string, up PaperUpdate) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	updates := make(map[string]interface{})
	if up.Title != nil {
		updates["title"] = *up.Title
	}
	if up.Pages != nil {
		updates["pages"] = *up.Pages
	}
	if up.Chunks != nil {
		updates["chunks"] = *up.Chunks
	}
	if up.Tokens != nil {
		updates["tokens"] = *up.Tokens
	}
	if up.Status != nil {
		updates["status"] = *up.Status
	}
	if up.ErrorMessage != nil {
		updates["error_message"] = *up.ErrorMessage
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&Paper{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update paper: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("paper", id)
	}
	return nil
}

func (s *Storage) GetPaper(ctx context.Context, id string) (*Paper, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	var p Paper
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("paper", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return &p, nil
}

// ListPapers 按上传时间倒序返回论文，status 为空时不过滤
func (s *Storage) ListPapers(ctx context.Context, status string, limit int) ([]Paper, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	db := s.db.WithContext(ctx).Model(&Paper{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var out []Paper
	if err := db.Order("uploaded_at DESC").Limit(normalizeLimit(limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return out, nil
}

func (s *Storage) DeletePaper(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Paper{})
	if res.Error != nil {
		return fmt.Errorf("delete paper: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("paper", id)
	}
	return nil
}
