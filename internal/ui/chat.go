package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/wwwzy/PaperAgent/internal/agent"
)

// ChatBackend 由 agent.Runner 实现，每个问题是一次独立的运行
type ChatBackend interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	Mode          agent.Mode
	PaperIDs      []string
	ShowReasoning bool
}

// Session 保存对话过程中可通过斜杠命令修改的设置
type Session struct {
	Opts ChatOptions
}

func NewSession(opts ChatOptions) *Session {
	if opts.Mode == "" {
		opts.Mode = agent.ModeText
	}
	return &Session{Opts: opts}
}

// Ask 执行一次提问并返回可展示的 markdown
func (s *Session) Ask(ctx context.Context, backend ChatBackend, question string) (string, error) {
	res, err := backend.Run(ctx, agent.Request{
		Question: question,
		PaperIDs: s.Opts.PaperIDs,
		Mode:     s.Opts.Mode,
	})
	if err != nil {
		return "", err
	}
	return FormatResponse(agent.BuildResponse(res, s.Opts.ShowReasoning)), nil
}

// Command 处理 /mode /papers /reasoning，ok 为 false 表示不是命令
func (s *Session) Command(line string) (reply string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", false
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "mode":
		mode, err := agent.ParseMode(arg)
		if err != nil {
			return err.Error(), true
		}
		s.Opts.Mode = mode
		return "执行模式: " + string(mode), true
	case "papers":
		s.Opts.PaperIDs = nil
		for _, id := range strings.Split(arg, ",") {
			if id = strings.TrimSpace(id); id != "" {
				s.Opts.PaperIDs = append(s.Opts.PaperIDs, id)
			}
		}
		if len(s.Opts.PaperIDs) == 0 {
			return "检索范围: 全部论文", true
		}
		return "检索范围: " + strings.Join(s.Opts.PaperIDs, ", "), true
	case "reasoning":
		s.Opts.ShowReasoning = !s.Opts.ShowReasoning
		return fmt.Sprintf("显示推理过程: %v", s.Opts.ShowReasoning), true
	case "help":
		return helpText, true
	default:
		return "未知命令: /" + name + "\n" + helpText, true
	}
}

const helpText = `/mode text|code   切换执行模式
/papers id1,id2   限定检索的论文（留空表示全部）
/reasoning        显示/隐藏推理过程
exit | quit       退出`

// FormatResponse 渲染回答、引用和推理摘要
func FormatResponse(resp agent.Response) string {
	var b strings.Builder
	b.WriteString(resp.Answer)

	if len(resp.Citations) > 0 {
		b.WriteString("\n\n**Sources**\n")
		for i, c := range resp.Citations {
			fmt.Fprintf(&b, "%d. %s", i+1, c.Paper)
			if c.Page > 0 {
				fmt.Fprintf(&b, " p.%d", c.Page)
			}
			if c.Section != "" {
				fmt.Fprintf(&b, " (%s)", c.Section)
			}
			fmt.Fprintf(&b, " confidence %.2f\n", c.Confidence)
		}
	}

	if r := resp.Reasoning; r != nil {
		b.WriteString("\n**Reasoning**\n")
		if len(r.Plan) > 0 {
			b.WriteString("- plan: " + strings.Join(r.Plan, " → ") + "\n")
		}
		if len(r.ToolCalls) > 0 {
			b.WriteString("- tools: " + strings.Join(r.ToolCalls, ", ") + "\n")
		}
		for _, q := range r.Rewrites {
			b.WriteString("- rewrite: " + q + "\n")
		}
		fmt.Fprintf(&b, "- retries: %d, steps: %d\n", r.RetryCount, r.Steps)
	}

	if resp.Outcome != "" && resp.Outcome != agent.OutcomeSupported {
		fmt.Fprintf(&b, "\n_outcome: %s_\n", resp.Outcome)
	}
	return strings.TrimRight(b.String(), "\n")
}
