package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/sandbox"
)

// ExecuteCodeTool 在沙箱中执行 Python。执行错误写进 text_summary，不向上返回。
type ExecuteCodeTool struct {
	executor     sandbox.Executor
	publicPrefix string
}

func NewExecuteCodeTool(executor sandbox.Executor, publicPrefix string) *ExecuteCodeTool {
	if publicPrefix == "" {
		publicPrefix = "/static/exports"
	}
	return &ExecuteCodeTool{executor: executor, publicPrefix: strings.TrimRight(publicPrefix, "/")}
}

func (t *ExecuteCodeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameExecuteCode,
		Desc: "Execute Python code for math, data analysis, or plotting. Use this tool for ANY numerical calculation or statistical comparison. matplotlib figures are saved automatically. NO internet access.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"code": {
				Desc:     "Valid Python source code",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *ExecuteCodeTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return PlainText(fmt.Sprintf("Error executing code: invalid arguments: %v", err)).Encode(), nil
	}
	if strings.TrimSpace(args.Code) == "" {
		return PlainText("Error executing code: no code provided").Encode(), nil
	}

	exec, err := t.executor.Execute(ctx, args.Code)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, sandbox.ErrTimeout) {
			return PlainText("Error executing code: execution timed out").Encode(), nil
		}
		return PlainText(fmt.Sprintf("Error executing code: %v", err)).Encode(), nil
	}
	return t.result(exec).Encode(), nil
}

func (t *ExecuteCodeTool) result(exec *sandbox.Execution) Result {
	summary := exec.Stdout
	if exec.Failed() {
		summary = fmt.Sprintf("Error executing code: %s", lastLine(exec.Stderr))
	} else if strings.TrimSpace(summary) == "" {
		summary = "Code executed successfully (no output)."
	}

	if len(exec.Images) == 0 {
		return PlainText(summary)
	}
	name := exec.Images[0]
	path := t.publicPrefix + "/" + name
	summary += fmt.Sprintf("\n\n[Plot generated and saved to %s]", path)
	return ArtifactResult(summary, &Artifact{Type: "image", Path: path, Name: name})
}

// lastLine 取 traceback 的最后一行作为错误摘要
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "exit status non-zero"
}
