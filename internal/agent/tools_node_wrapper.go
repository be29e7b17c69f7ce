package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

// NewToolsNode 创建 Eino 原生 ToolsNode。工具按顺序执行；
// 未绑定的工具（例如 text 模式下的 execute_code）返回说明文字而不是报错。
func NewToolsNode(ctx context.Context, ts []tool.BaseTool) (*compose.ToolsNode, error) {
	return compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               ts,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(_ context.Context, name, _ string) (string, error) {
			return tools.PlainText(fmt.Sprintf("Tool %s failed: tool is not available in this execution mode", name)).Encode(), nil
		},
	})
}

// ConvertStateToToolsInput 将 AgentState 转换为 ToolsNode 所需的输入 (*schema.Message)
func ConvertStateToToolsInput(state AgentState) *schema.Message {
	// 构造一个包含 ToolCalls 的 Message 作为输入
	// ToolsNode 会解析这个 Message 中的 ToolCalls 并执行
	return &schema.Message{
		Role:      schema.Assistant,
		ToolCalls: state.NextStepToolCalls,
	}
}

// ConvertToolsOutputToState 将 ToolsNode 的输出 ([]*schema.Message) 转换回 AgentState
func ConvertToolsOutputToState(state AgentState, outputs []*schema.Message) AgentState {
	state.LatestToolOutputs = outputs
	state.Messages = append(state.Messages, outputs...)
	state.NextStepToolCalls = nil
	return state
}

// toolContext 注入审计用的 trace id 和检索范围
func toolContext(ctx context.Context, state AgentState) context.Context {
	ctx = tools.WithTraceID(ctx, state.SessionID)
	return tools.WithPaperScope(ctx, state.PaperIDs)
}
