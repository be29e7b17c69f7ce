package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 系统指令模板，变量: {plan}, {scope}
// 模板使用 FString 语法，正文中不能出现花括号
const textModePrompt = `You are a senior research assistant answering questions about research papers.
Use your tools to gather evidence before answering.
When providing an answer based on retrieved information, use inline citations like [1], [2].
Always verify your answers against the tool results and say so when the information is not available.

Execution mode: TEXT.
- Do NOT write or execute code. The execute_code tool is not available in this mode.
- Answer in prose grounded in the retrieved content.

Papers in scope: {scope}

Here is your plan:
{plan}

Follow this plan to answer the user's question.`

const codeModePrompt = `You are a senior research assistant that answers questions about research papers with Python.
Use your tools to gather the data you need, then compute or visualize it.

Execution mode: CODE.
- You MUST call the execute_code tool at least once before giving your final answer.
- Do not merely describe or print code in your reply: pass it to execute_code.
- For charts use matplotlib. Figures are saved automatically, do not call plt.show().
- After the tool returns, summarize the result and reference the generated figure.

Papers in scope: {scope}

Here is your plan:
{plan}

Follow this plan to complete the user's request.`

const noPlanText = "No plan is available. Decide the steps yourself."

// plannerObjective 把模式约束写进规划目标
func plannerObjective(question string, mode Mode, hasPapers bool) string {
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\n")
	if mode == ModeCode {
		b.WriteString("Constraint (CODE_MODE): the plan must include at least one step that runs Python with the execute_code tool.")
	} else {
		b.WriteString("Constraint (TEXT_MODE): do not use the execute_code tool. Answer with retrieval and reasoning only.")
	}
	if hasPapers {
		b.WriteString("\nUploaded papers are in scope: start with the retrieve tool.")
	} else {
		b.WriteString("\nNo uploaded papers are selected: prefer external_paper_search or web_search.")
	}
	return b.String()
}

// newDirectiveTemplate 组装 "System + History"，System 每次重新生成
func newDirectiveTemplate(mode Mode) prompt.ChatTemplate {
	system := textModePrompt
	if mode == ModeCode {
		system = codeModePrompt
	}
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder("history", false),
	)
}

type directives struct {
	text prompt.ChatTemplate
	code prompt.ChatTemplate
}

func newDirectives() *directives {
	return &directives{text: newDirectiveTemplate(ModeText), code: newDirectiveTemplate(ModeCode)}
}

// apply 返回新的消息列表：当前模式的系统指令 + 去掉旧系统消息的历史。
// 旧系统消息被替换而不是叠加，中途切换模式会在下一次调用时生效。
func (d *directives) apply(ctx context.Context, st AgentState) ([]*schema.Message, error) {
	tmpl := d.text
	if st.Mode == ModeCode {
		tmpl = d.code
	}
	history := make([]*schema.Message, 0, len(st.Messages))
	for _, m := range st.Messages {
		if m.Role == schema.System {
			continue
		}
		history = append(history, m)
	}
	msgs, err := tmpl.Format(ctx, map[string]any{
		"plan":    formatPlan(st.Plan),
		"scope":   formatScope(st.PaperIDs),
		"history": history,
	})
	if err != nil {
		return nil, fmt.Errorf("format system directive: %w", err)
	}
	return msgs, nil
}

func formatPlan(steps []string) string {
	if len(steps) == 0 {
		return noPlanText
	}
	lines := make([]string, 0, len(steps))
	for i, s := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
	}
	return strings.Join(lines, "\n")
}

func formatScope(paperIDs []string) string {
	if len(paperIDs) == 0 {
		return "none (unrestricted retrieval, external search allowed)"
	}
	return strings.Join(paperIDs, ", ")
}
