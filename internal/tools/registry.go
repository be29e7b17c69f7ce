package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/sandbox"
)

// Deps 汇总构造全部工具所需的依赖，由调用方一次性组装
type Deps struct {
	Searcher   Searcher
	Expander   QueryExpander
	Summarizer Summarizer
	Executor   sandbox.Executor

	Retrieve     RetrieveConfig
	Arxiv        ArxivConfig
	WebSearch    WebSearchConfig
	PublicPrefix string

	Audit AuditOptions
}

// Set 是一组已包装审计的工具
type Set struct {
	tools []*AuditedTool
	names []string
}

func NewSet(ctx context.Context, d Deps) (*Set, error) {
	raw := []tool.InvokableTool{
		NewRetrieveTool(d.Searcher, d.Expander, d.Retrieve, d.Audit.Logger),
		NewArxivTool(d.Arxiv),
		NewWebSearchTool(d.WebSearch),
		NewSummarizeSectionTool(d.Searcher, d.Summarizer),
	}
	if d.Executor != nil {
		raw = append(raw, NewExecuteCodeTool(d.Executor, d.PublicPrefix))
	}
	return NewSetFrom(ctx, d.Audit, raw...)
}

// NewSetFrom 用任意工具组成集合，测试中用来注入假工具
func NewSetFrom(ctx context.Context, audit AuditOptions, raw ...tool.InvokableTool) (*Set, error) {
	s := &Set{}
	for _, t := range raw {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		s.tools = append(s.tools, Wrap(t, audit))
		s.names = append(s.names, info.Name)
	}
	return s, nil
}

// Tools 返回除 exclude 之外的工具
func (s *Set) Tools(exclude ...string) []tool.BaseTool {
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		skip[n] = struct{}{}
	}
	out := make([]tool.BaseTool, 0, len(s.tools))
	for i, t := range s.tools {
		if _, ok := skip[s.names[i]]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Infos 返回用于绑定到模型的工具描述
func (s *Set) Infos(ctx context.Context, exclude ...string) ([]*schema.ToolInfo, error) {
	tools := s.Tools(exclude...)
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}
