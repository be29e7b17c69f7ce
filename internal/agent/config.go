package agent

import (
	"fmt"
	"time"
)

type ExhaustionPolicy string

const (
	// ExhaustUnsupported 重试耗尽后保持未通过状态结束
	ExhaustUnsupported ExhaustionPolicy = "unsupported"
	// ExhaustAccept 重试耗尽后接受最后的回答（code 模式没有产物时除外）
	ExhaustAccept ExhaustionPolicy = "accept"
)

type RelevanceGrading string

const (
	// GradePayload 对整轮工具原始输出评一次
	GradePayload RelevanceGrading = "payload"
	// GradePerDocument 逐条评分，只保留相关的文档
	GradePerDocument RelevanceGrading = "per_document"
)

type Config struct {
	MaxRetries       int              `mapstructure:"max_retries"`
	StepBudget       int              `mapstructure:"step_budget"`
	ExecutionMode    Mode             `mapstructure:"execution_mode"`
	OnRetryExhausted ExhaustionPolicy `mapstructure:"on_retry_exhausted"`
	CodeFallback     bool             `mapstructure:"code_fallback"`
	RelevanceGrading RelevanceGrading `mapstructure:"relevance_grading"`
	ToolTimeout      time.Duration    `mapstructure:"tool_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       5,
		StepBudget:       40,
		ExecutionMode:    ModeText,
		OnRetryExhausted: ExhaustUnsupported,
		CodeFallback:     true,
		RelevanceGrading: GradePayload,
		ToolTimeout:      2 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.StepBudget <= 0 {
		return fmt.Errorf("agent.step_budget must be > 0, got %d", c.StepBudget)
	}
	if _, err := ParseMode(string(c.ExecutionMode)); err != nil {
		return fmt.Errorf("agent.execution_mode: %w", err)
	}
	switch c.OnRetryExhausted {
	case ExhaustUnsupported, ExhaustAccept:
	default:
		return fmt.Errorf("agent.on_retry_exhausted must be %q or %q, got %q", ExhaustUnsupported, ExhaustAccept, c.OnRetryExhausted)
	}
	switch c.RelevanceGrading {
	case GradePayload, GradePerDocument:
	default:
		return fmt.Errorf("agent.relevance_grading must be %q or %q, got %q", GradePayload, GradePerDocument, c.RelevanceGrading)
	}
	return nil
}
