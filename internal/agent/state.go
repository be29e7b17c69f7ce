package agent

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

// Mode 决定系统指令、规划约束和成功判定
type Mode string

const (
	ModeText Mode = "text"
	ModeCode Mode = "code"
)

// ParseMode 兼容旧客户端使用的 "python"
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", string(ModeText):
		return ModeText, nil
	case string(ModeCode), "python":
		return ModeCode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Artifact 生成文件的描述，由 execute_code 产生
type Artifact = tools.Artifact

type Outcome string

const (
	// OutcomeSupported 回答通过评分
	OutcomeSupported Outcome = "supported"
	// OutcomeAcceptedAfterRetries 重试耗尽后按配置强制接受
	OutcomeAcceptedAfterRetries Outcome = "accepted_after_retries"
	// OutcomeRetryExhausted 重试耗尽，最后的回答未通过评分
	OutcomeRetryExhausted Outcome = "retry_exhausted"
	// OutcomeStepBudgetExhausted 总步数用尽
	OutcomeStepBudgetExhausted Outcome = "step_budget_exhausted"
)

// DocumentMetadata 随工具输出透传，零值字段不输出
type DocumentMetadata struct {
	Source     string    `json:"source"`
	PageNumber int       `json:"page_number,omitempty"`
	Section    string    `json:"section,omitempty"`
	PaperID    string    `json:"paper_id,omitempty"`
	ChunkID    string    `json:"chunk_id,omitempty"`
	Score      float64   `json:"score,omitempty"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	Published  string    `json:"published,omitempty"`
	Artifact   *Artifact `json:"artifact,omitempty"`
}

// Document 由文档评分节点从工具原始输出生成，创建后不再修改
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// AgentState 定义了在 Graph 中流转的状态，按值传递，一次运行独占
type AgentState struct {
	SessionID string `json:"session_id"`
	// 原始问题，改写和评分都以它为准
	Question string `json:"question"`

	// 历史对话消息，planner 之后 Messages[0] 始终是当前模式的系统指令
	Messages []*schema.Message `json:"messages"`

	PaperIDs  []string   `json:"paper_ids,omitempty"`
	Documents []Document `json:"documents,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// 三态：nil 表示尚未评分
	IsRelevant  *bool `json:"is_relevant,omitempty"`
	IsSupported *bool `json:"is_supported,omitempty"`
	RetryCount  int   `json:"retry_count"`

	Mode Mode     `json:"execution_mode"`
	Plan []string `json:"plan,omitempty"`

	// 显式信号字段，用于 Graph 分支判断
	NextStepToolCalls []schema.ToolCall `json:"tool_calls,omitempty"`   // 本轮 LLM 生成的工具调用
	LatestToolOutputs []*schema.Message `json:"tool_outputs,omitempty"` // 本轮工具执行后的结果消息 (Role=Tool)

	// 最近一次提交的节点与已执行步数，断点续跑依赖这两个字段
	LastNode string `json:"last_node,omitempty"`
	Steps    int    `json:"steps"`

	ForceAccepted bool    `json:"force_accepted,omitempty"`
	Outcome       Outcome `json:"outcome,omitempty"`
}

// NewState 创建一次运行的初始状态，问题是唯一的用户消息
func NewState(sessionID, question string, paperIDs []string, mode Mode) AgentState {
	return AgentState{
		SessionID: sessionID,
		Question:  question,
		Messages:  []*schema.Message{schema.UserMessage(question)},
		PaperIDs:  append([]string(nil), paperIDs...),
		Mode:      mode,
	}
}

// Finished 是否已经到达终态
func (s AgentState) Finished() bool {
	return s.Outcome != ""
}

// LastAnswer 返回最后一条有内容的助手消息
func (s AgentState) LastAnswer() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == schema.Assistant && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

func boolPtr(b bool) *bool {
	return &b
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
