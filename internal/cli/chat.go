package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/tui"
	"github.com/wwwzy/PaperAgent/internal/ui"
)

var (
	chatUI        string
	chatMode      string
	chatPapers    []string
	chatReasoning bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式问答模式",
	Long: `进入交互式问答，每个问题都是一次独立的 Agent 运行。
支持 /mode、/papers、/reasoning 等命令在对话中切换设置。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		mode := cfg.Agent.ExecutionMode
		if chatMode != "" {
			var err error
			if mode, err = agent.ParseMode(chatMode); err != nil {
				return err
			}
		}

		a, err := openAgent(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		return uiImpl.Run(ctx, a.runner, ui.ChatOptions{
			Mode:          mode,
			PaperIDs:      chatPapers,
			ShowReasoning: chatReasoning,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "初始执行模式: text/code")
	chatCmd.Flags().StringSliceVar(&chatPapers, "paper", nil, "限定检索的论文 id，可重复")
	chatCmd.Flags().BoolVar(&chatReasoning, "reasoning", false, "显示推理过程")
}
