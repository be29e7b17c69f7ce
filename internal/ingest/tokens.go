package ingest

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 使用 tiktoken 统计 token，编码不可用（例如离线无法下载 BPE）时按词数估算
type TokenCounter struct {
	once  sync.Once
	enc   *tiktoken.Tiktoken
	model string
}

func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (c *TokenCounter) init() {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			slog.Debug("tiktoken unavailable, falling back to word estimate", "error", err)
			return
		}
		c.enc = enc
	})
}

func (c *TokenCounter) Count(text string) int {
	if c == nil {
		return estimateTokens(text)
	}
	c.init()
	if c.enc == nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// 英文平均约 0.75 词/token
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}
