package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Rewriter 在检索结果不相关时改写问题
type Rewriter struct {
	cm   model.BaseChatModel
	tmpl prompt.ChatTemplate
}

func NewRewriter(cm model.BaseChatModel) *Rewriter {
	return &Rewriter{
		cm:   cm,
		tmpl: prompt.FromMessages(schema.FString, schema.UserMessage(rewritePrompt)),
	}
}

func (r *Rewriter) Rewrite(ctx context.Context, question string) (string, error) {
	out, err := complete(ctx, r.cm, r.tmpl, map[string]any{"question": question})
	if err != nil {
		return "", fmt.Errorf("rewrite question: %w", err)
	}
	if out == "" {
		return "", errors.New("rewrite question: empty response")
	}
	return out, nil
}

// 模型有时仍会输出 "1." 或 "-" 前缀
var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+`)

// Expander 生成检索用的问题变体
type Expander struct {
	cm   model.BaseChatModel
	tmpl prompt.ChatTemplate
}

func NewExpander(cm model.BaseChatModel) *Expander {
	return &Expander{
		cm: cm,
		tmpl: prompt.FromMessages(schema.FString,
			schema.SystemMessage("You are a helpful research assistant."),
			schema.UserMessage(expandPrompt),
		),
	}
}

// Expand 返回原始问题加上最多 n 个变体
func (e *Expander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return []string{query}, nil
	}
	out, err := complete(ctx, e.cm, e.tmpl, map[string]any{"question": query, "n": strconv.Itoa(n)})
	if err != nil {
		return nil, fmt.Errorf("expand query: %w", err)
	}
	variants := []string{query}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) == n+1 {
			break
		}
	}
	return variants, nil
}

// Summarizer 为 summarize_section 工具生成章节摘要
type Summarizer struct {
	cm   model.BaseChatModel
	tmpl prompt.ChatTemplate
}

func NewSummarizer(cm model.BaseChatModel) *Summarizer {
	return &Summarizer{
		cm:   cm,
		tmpl: prompt.FromMessages(schema.FString, schema.UserMessage(summarizePrompt)),
	}
}

func (s *Summarizer) Summarize(ctx context.Context, section, content string) (string, error) {
	out, err := complete(ctx, s.cm, s.tmpl, map[string]any{"section": section, "content": content})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", section, err)
	}
	return out, nil
}

func complete(ctx context.Context, cm model.BaseChatModel, tmpl prompt.ChatTemplate, vars map[string]any) (string, error) {
	msgs, err := tmpl.Format(ctx, vars)
	if err != nil {
		return "", err
	}
	resp, err := cm.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
