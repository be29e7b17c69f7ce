package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

const (
	NameRetrieve             = "retrieve"
	NameExternalPaperSearch  = "external_paper_search"
	NameWebSearch            = "web_search"
	NameSummarizeSection     = "summarize_section"
	NameExecuteCode          = "execute_code"
	defaultTopK              = 20
	defaultTopKReranked      = 5
	defaultQueryVariantCount = 3
)

// Searcher 是向量检索的窄接口，*vectorstore.Store 实现它
type Searcher interface {
	Query(ctx context.Context, text string, topK int, f vectorstore.Filter) ([]vectorstore.Hit, error)
}

// QueryExpander 返回包含原始问题在内的查询变体
type QueryExpander interface {
	Expand(ctx context.Context, query string, n int) ([]string, error)
}

type RetrieveConfig struct {
	TopK          int `mapstructure:"top_k"`
	TopKReranked  int `mapstructure:"top_k_reranked"`
	QueryVariants int `mapstructure:"query_variants"`
}

func DefaultRetrieveConfig() RetrieveConfig {
	return RetrieveConfig{TopK: defaultTopK, TopKReranked: defaultTopKReranked, QueryVariants: defaultQueryVariantCount}
}

func (c RetrieveConfig) withDefaults() RetrieveConfig {
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.TopKReranked <= 0 {
		c.TopKReranked = defaultTopKReranked
	}
	if c.QueryVariants < 0 {
		c.QueryVariants = 0
	}
	return c
}

// RetrieveTool 在已上传论文中检索：查询扩展 -> 多路召回 -> 去重 -> 重排
type RetrieveTool struct {
	searcher Searcher
	expander QueryExpander
	cfg      RetrieveConfig
	logger   *slog.Logger
}

func NewRetrieveTool(searcher Searcher, expander QueryExpander, cfg RetrieveConfig, logger *slog.Logger) *RetrieveTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveTool{searcher: searcher, expander: expander, cfg: cfg.withDefaults(), logger: logger}
}

func (t *RetrieveTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameRetrieve,
		Desc: "Retrieve relevant sections from the uploaded research papers. Use this tool when you need to answer a question based on the document context.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The search query string",
				Type:     schema.String,
				Required: true,
			},
			"paper_id": {
				Desc:     "Optional id of a specific paper to restrict the search to",
				Type:     schema.String,
				Required: false,
			},
		}),
	}, nil
}

func (t *RetrieveTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query   string `json:"query"`
		PaperID string `json:"paper_id"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", errors.New("query is required")
	}

	records, err := t.Retrieve(ctx, args.Query, args.PaperID)
	if err != nil {
		return "", err
	}
	return DocumentList(records).Encode(), nil
}

// Retrieve 执行完整的检索流程。paperID 为空时使用 context 中的论文范围。
func (t *RetrieveTool) Retrieve(ctx context.Context, query, paperID string) ([]Record, error) {
	queries := t.expand(ctx, query)

	var filters []vectorstore.Filter
	switch scope := PaperScope(ctx); {
	case paperID != "":
		filters = []vectorstore.Filter{{PaperID: paperID}}
	case len(scope) > 0:
		// chromem 的 where 只支持 AND，多篇论文逐篇查询
		for _, id := range scope {
			filters = append(filters, vectorstore.Filter{PaperID: id})
		}
	default:
		filters = []vectorstore.Filter{{}}
	}

	var candidates []vectorstore.Hit
	for _, q := range queries {
		for _, f := range filters {
			hits, err := t.searcher.Query(ctx, q, t.cfg.TopK, f)
			if err != nil {
				return nil, fmt.Errorf("retrieve %q: %w", q, err)
			}
			candidates = append(candidates, hits...)
		}
	}
	if len(candidates) == 0 {
		return []Record{}, nil
	}

	ranked := vectorstore.Rerank(query, vectorstore.Dedupe(candidates), t.cfg.TopKReranked)
	records := make([]Record, 0, len(ranked))
	for _, r := range ranked {
		records = append(records, Record{
			Content:    r.Text,
			Source:     fmt.Sprintf("Page %d - Section %s", r.Page, r.Section),
			PageNumber: r.Page,
			Section:    r.Section,
			PaperID:    r.PaperID,
			ChunkID:    r.ID,
			Score:      r.Score,
		})
	}
	t.logger.Debug("retrieved", "query", query, "variants", len(queries), "candidates", len(candidates), "kept", len(records))
	return records, nil
}

func (t *RetrieveTool) expand(ctx context.Context, query string) []string {
	if t.expander == nil || t.cfg.QueryVariants == 0 {
		return []string{query}
	}
	variants, err := t.expander.Expand(ctx, query, t.cfg.QueryVariants)
	if err != nil || len(variants) == 0 {
		if err != nil {
			t.logger.Warn("query expansion failed, using original query", "err", err)
		}
		return []string{query}
	}
	out := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
