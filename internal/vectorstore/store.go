package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

const DefaultCollection = "research_papers"

type Config struct {
	// Path 为空时使用纯内存库
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
	Compress   bool   `mapstructure:"compress"`
}

// Chunk 是写入向量库的最小单元，元数据全部以字符串形式存入 chromem
type Chunk struct {
	ID      string `json:"chunk_id"`
	PaperID string `json:"paper_id"`
	Text    string `json:"text"`
	Page    int    `json:"page_number"`
	Section string `json:"section"`
	Source  string `json:"source"`
	Index   int    `json:"index"`
}

type Hit struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

// Filter 的零值字段不参与过滤
type Filter struct {
	PaperID string
	Section string
}

type Store struct {
	db  *chromem.DB
	col *chromem.Collection

	// chromem 的 Delete/Add 自身是并发安全的，这里的锁只保证
	// “按 paper 删除”与“写入同一 paper”不交错。
	mu sync.Mutex
}

func New(cfg Config, embed chromem.EmbeddingFunc) (*Store, error) {
	if embed == nil {
		return nil, errors.New("embedding func is required")
	}
	name := cfg.Collection
	if name == "" {
		name = DefaultCollection
	}

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}
	return &Store{db: db, col: col}, nil
}

// ChunkID 由 paper id 与序号组成，便于按 paper 逐个取回
func ChunkID(paperID string, index int) string {
	return paperID + "_" + strconv.Itoa(index)
}

func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = ChunkID(c.PaperID, c.Index)
		}
		docs = append(docs, chromem.Document{
			ID:       c.ID,
			Content:  c.Text,
			Metadata: toMetadata(c),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Query 语义检索。topK 会被裁剪到集合大小，集合为空时返回空结果而不是错误。
func (s *Store) Query(ctx context.Context, text string, topK int, f Filter) ([]Hit, error) {
	count := s.col.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.col.Query(ctx, text, topK, f.where(), nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{Chunk: fromMetadata(r.ID, r.Content, r.Metadata), Similarity: r.Similarity})
	}
	return hits, nil
}

// PaperChunks 按序号返回某篇论文的全部分块
func (s *Store) PaperChunks(ctx context.Context, paperID string, total int) ([]Chunk, error) {
	out := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		doc, err := s.col.GetByID(ctx, ChunkID(paperID, i))
		if err != nil {
			// References 等被跳过的分块不会写入，序号可能不连续
			continue
		}
		out = append(out, fromMetadata(doc.ID, doc.Content, doc.Metadata))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) DeletePaper(ctx context.Context, paperID string) error {
	if paperID == "" {
		return errors.New("paper id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col.Count() == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, map[string]string{"paper_id": paperID}, nil); err != nil {
		return fmt.Errorf("delete paper %s: %w", paperID, err)
	}
	return nil
}

func (s *Store) Count() int {
	return s.col.Count()
}

func (f Filter) where() map[string]string {
	w := make(map[string]string, 2)
	if f.PaperID != "" {
		w["paper_id"] = f.PaperID
	}
	if f.Section != "" {
		w["section"] = f.Section
	}
	if len(w) == 0 {
		return nil
	}
	return w
}

func toMetadata(c Chunk) map[string]string {
	return map[string]string{
		"paper_id":    c.PaperID,
		"page_number": strconv.Itoa(c.Page),
		"section":     c.Section,
		"source":      c.Source,
		"chunk_index": strconv.Itoa(c.Index),
	}
}

func fromMetadata(id, content string, md map[string]string) Chunk {
	page, _ := strconv.Atoi(md["page_number"])
	idx, _ := strconv.Atoi(md["chunk_index"])
	return Chunk{
		ID:      id,
		PaperID: md["paper_id"],
		Text:    content,
		Page:    page,
		Section: md["section"],
		Source:  md["source"],
		Index:   idx,
	}
}
