package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/ui"
)

var (
	askMode      string
	askPapers    []string
	askSession   string
	askReasoning bool
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "对已导入的论文提一个问题",
	Long: `运行一次完整的 Agent 流程并输出回答、引用和（可选的）推理过程。
中断后可以用 sessions resume 从最后一个检查点继续。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openAgent(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.runner.Run(ctx, agent.Request{
			SessionID: askSession,
			Question:  strings.Join(args, " "),
			PaperIDs:  askPapers,
			Mode:      agent.Mode(askMode),
		})
		if err != nil {
			return fmt.Errorf("运行失败: %w", err)
		}
		return printResponse(agent.BuildResponse(res, askReasoning), askJSON)
	},
}

// printResponse 以 markdown（终端渲染）或 JSON 输出结果
func printResponse(resp agent.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	md := ui.FormatResponse(resp)
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			md = out
		}
	}
	fmt.Println(md)
	fmt.Printf("session: %s\n", resp.SessionID)
	return nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askMode, "mode", "", "执行模式: text/code（默认取 agent.execution_mode）")
	askCmd.Flags().StringSliceVar(&askPapers, "paper", nil, "限定检索的论文 id，可重复")
	askCmd.Flags().StringVar(&askSession, "session", "", "会话 id，默认自动生成")
	askCmd.Flags().BoolVar(&askReasoning, "reasoning", false, "输出推理过程")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "以 JSON 输出")
}
