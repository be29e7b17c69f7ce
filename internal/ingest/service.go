package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

var ErrUnsupportedFile = errors.New("only PDF files are supported")

type Config struct {
	UploadDir    string `mapstructure:"upload_dir"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	// Workers 为 CLI 批量导入的并发度
	Workers int `mapstructure:"workers"`
	// TokenModel 用于选择 tiktoken 编码
	TokenModel string `mapstructure:"token_model"`
}

// PageExtractor 便于测试时替换 PDF 解析
type PageExtractor func(path string) ([]Page, error)

type Service struct {
	cfg     Config
	store   *storage.Storage
	vectors *vectorstore.Store
	chunker Chunker
	tokens  *TokenCounter
	extract PageExtractor
	logger  *slog.Logger
}

func NewService(cfg Config, store *storage.Storage, vectors *vectorstore.Store, logger *slog.Logger) (*Service, error) {
	if store == nil || vectors == nil {
		return nil, errors.New("storage and vector store are required")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		vectors: vectors,
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		tokens:  NewTokenCounter(cfg.TokenModel),
		extract: ExtractPages,
		logger:  logging.WithComponent(logger, "ingest"),
	}, nil
}

// WithExtractor 替换 PDF 解析实现
func (s *Service) WithExtractor(fn PageExtractor) *Service {
	if fn != nil {
		s.extract = fn
	}
	return s
}

// Ingest 保存上传文件、解析、分块并写入向量库。任一步失败都会回滚已写入的内容。
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (*storage.Paper, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, ErrUnsupportedFile
	}

	paperID := uuid.NewString()
	path := filepath.Join(s.cfg.UploadDir, paperID+".pdf")
	if err := saveFile(path, r); err != nil {
		return nil, err
	}

	paper := &storage.Paper{
		ID:       paperID,
		Filename: filepath.Base(filename),
		Path:     path,
		Status:   storage.PaperStatusProcessing,
	}
	if err := s.store.InsertPaper(ctx, paper); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	if err := s.index(ctx, paper); err != nil {
		s.logger.Error("ingest failed", "paper_id", paperID, "filename", filename, "error", err)
		_ = s.vectors.DeletePaper(context.WithoutCancel(ctx), paperID)
		_ = os.Remove(path)
		failed, msg := storage.PaperStatusFailed, err.Error()
		_ = s.store.UpdatePaper(context.WithoutCancel(ctx), paperID, storage.PaperUpdate{Status: &failed, ErrorMessage: &msg})
		return nil, err
	}

	s.logger.Info("paper ingested", "paper_id", paperID, "filename", paper.Filename, "pages", paper.Pages, "chunks", paper.Chunks)
	return paper, nil
}

func (s *Service) index(ctx context.Context, paper *storage.Paper) error {
	pages, err := s.extract(paper.Path)
	if err != nil {
		return err
	}

	var (
		chunks []vectorstore.Chunk
		tokens int
		index  int
	)
	for _, p := range pages {
		section := p.Section
		if section == "" {
			section = SectionBody
		}
		for _, text := range s.chunker.Chunk(p.Text) {
			i := index
			index++
			if ShouldSkipSection(section) {
				continue
			}
			tokens += s.tokens.Count(text)
			chunks = append(chunks, vectorstore.Chunk{
				ID:      vectorstore.ChunkID(paper.ID, i),
				PaperID: paper.ID,
				Text:    text,
				Page:    p.Number,
				Section: section,
				Source:  paper.Filename,
				Index:   i,
			})
		}
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no indexable content in %s", paper.Filename)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.vectors.Add(ctx, chunks); err != nil {
		return err
	}

	title := GuessTitle(pages)
	numPages := len(pages)
	// Chunks 记录最大序号 + 1，用于按序号取回分块
	total := index
	ready := storage.PaperStatusReady
	if err := s.store.UpdatePaper(ctx, paper.ID, storage.PaperUpdate{
		Title:  &title,
		Pages:  &numPages,
		Chunks: &total,
		Tokens: &tokens,
		Status: &ready,
	}); err != nil {
		return err
	}
	paper.Title, paper.Pages, paper.Chunks, paper.Tokens, paper.Status = title, numPages, total, tokens, ready
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*storage.Paper, error) {
	return s.store.GetPaper(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]storage.Paper, error) {
	return s.store.ListPapers(ctx, "", 0)
}

// Chunks 返回某篇论文已入库的分块（References 不在其中）
func (s *Service) Chunks(ctx context.Context, id string) ([]vectorstore.Chunk, error) {
	p, err := s.store.GetPaper(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.vectors.PaperChunks(ctx, id, p.Chunks)
}

// Delete 依次删除向量、文件与元数据
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.GetPaper(ctx, id)
	if err != nil {
		return err
	}
	if err := s.vectors.DeletePaper(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove paper file failed", "paper_id", id, "path", p.Path, "error", err)
	}
	if err := s.store.DeletePaper(ctx, id); err != nil {
		return err
	}
	s.logger.Info("paper deleted", "paper_id", id)
	return nil
}

func saveFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}
