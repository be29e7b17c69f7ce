package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrMalformedOutput 模型没有按约定的结构返回
var ErrMalformedOutput = errors.New("malformed structured output")

// structured 把一个“输出工具”绑定到模型上，借助 tool call 拿到结构化结果
type structured struct {
	cm   model.ToolCallingChatModel
	info *schema.ToolInfo
}

func newStructured(cm model.ToolCallingChatModel, info *schema.ToolInfo) (*structured, error) {
	if cm == nil {
		return nil, errors.New("chat model is required")
	}
	bound, err := cm.WithTools([]*schema.ToolInfo{info})
	if err != nil {
		return nil, fmt.Errorf("bind %s schema: %w", info.Name, err)
	}
	return &structured{cm: bound, info: info}, nil
}

// generate 调用模型并把结果解析到 out。优先取 tool call 参数，
// 模型直接回复文本时尝试从正文中解析 JSON。
func (s *structured) generate(ctx context.Context, msgs []*schema.Message, out any) (*schema.Message, error) {
	resp, err := s.cm.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%s: generate: %w", s.info.Name, err)
	}
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name != "" && tc.Function.Name != s.info.Name {
			continue
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), out); err != nil {
			return resp, fmt.Errorf("%w: %s arguments: %v", ErrMalformedOutput, s.info.Name, err)
		}
		return resp, nil
	}
	if raw := extractJSON(resp.Content); raw != "" {
		if err := json.Unmarshal([]byte(raw), out); err == nil {
			return resp, nil
		}
	}
	return resp, fmt.Errorf("%w: %s returned %q", ErrMalformedOutput, s.info.Name, truncate(resp.Content, 200))
}

// extractJSON 去掉 markdown 代码块包裹，返回第一个 JSON 对象
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
