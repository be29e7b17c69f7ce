package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/ingest"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

const (
	maxSectionChunks  = 200
	maxSectionContext = 20000
)

// Summarizer 对一段章节原文做摘要，llm 包实现它
type Summarizer interface {
	Summarize(ctx context.Context, section, content string) (string, error)
}

// SummarizeSectionTool 取出某一章节的全部分块并生成摘要
type SummarizeSectionTool struct {
	searcher   Searcher
	summarizer Summarizer
}

func NewSummarizeSectionTool(searcher Searcher, summarizer Summarizer) *SummarizeSectionTool {
	return &SummarizeSectionTool{searcher: searcher, summarizer: summarizer}
}

func (t *SummarizeSectionTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameSummarizeSection,
		Desc: "Summarize a specific section of the research paper(s).",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"section_name": {
				Desc:     "The section to summarize, using standard capitalization",
				Type:     schema.String,
				Enum:     ingest.SummarizableSections,
				Required: true,
			},
			"paper_id": {
				Desc:     "Optional paper id to restrict to",
				Type:     schema.String,
				Required: false,
			},
		}),
	}, nil
}

func (t *SummarizeSectionTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		SectionName string `json:"section_name"`
		PaperID     string `json:"paper_id"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	section := ingest.NormalizeSection(args.SectionName)
	if section == "" {
		return "", fmt.Errorf("unknown section %q, expected one of %s", args.SectionName, strings.Join(ingest.SummarizableSections, ", "))
	}

	chunks, err := t.sectionChunks(ctx, section, args.PaperID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return PlainText(fmt.Sprintf("No content found for section '%s'.", section)).Encode(), nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	content := strings.Join(texts, "\n")
	if len(content) > maxSectionContext {
		content = content[:maxSectionContext]
	}

	summary := content
	if t.summarizer != nil {
		summary, err = t.summarizer.Summarize(ctx, section, content)
		if err != nil {
			return "", fmt.Errorf("summarize %s: %w", section, err)
		}
	}

	return DocumentList([]Record{{
		Content: summary,
		Source:  section,
		Score:   1.0,
		PaperID: args.PaperID,
		ChunkID: "summary_" + section,
	}}).Encode(), nil
}

func (t *SummarizeSectionTool) sectionChunks(ctx context.Context, section, paperID string) ([]vectorstore.Hit, error) {
	var filters []vectorstore.Filter
	switch scope := PaperScope(ctx); {
	case paperID != "":
		filters = []vectorstore.Filter{{PaperID: paperID, Section: section}}
	case len(scope) > 0:
		for _, id := range scope {
			filters = append(filters, vectorstore.Filter{PaperID: id, Section: section})
		}
	default:
		filters = []vectorstore.Filter{{Section: section}}
	}

	var out []vectorstore.Hit
	for _, f := range filters {
		hits, err := t.searcher.Query(ctx, section, maxSectionChunks, f)
		if err != nil {
			return nil, fmt.Errorf("query section %s: %w", section, err)
		}
		out = append(out, hits...)
	}
	// 按原文顺序拼接
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PaperID != out[j].PaperID {
			return out[i].PaperID < out[j].PaperID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}
