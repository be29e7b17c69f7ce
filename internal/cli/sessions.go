package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wwwzy/PaperAgent/internal/agent"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "查看、续跑和删除会话检查点",
}

var sessionsLimit int

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出最近的会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCheckpoints(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		snaps, err := a.checkpoints.List(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Session\tLast Node\tStep\tUpdated")
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.SessionID, s.Node, s.Step, s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "显示会话的最新检查点",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCheckpoints(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.checkpoints.Load(ctx, args[0])
		if err != nil {
			return err
		}
		var st agent.AgentState
		if err := json.Unmarshal(snap.State, &st); err != nil {
			return fmt.Errorf("解析检查点失败: %w", err)
		}

		fmt.Printf("Session:     %s\n", st.SessionID)
		fmt.Printf("Question:    %s\n", st.Question)
		fmt.Printf("Mode:        %s\n", st.Mode)
		fmt.Printf("Last node:   %s (step %d)\n", st.LastNode, st.Steps)
		fmt.Printf("Retry count: %d\n", st.RetryCount)
		if st.Finished() {
			fmt.Printf("Outcome:     %s\n", st.Outcome)
		} else {
			fmt.Println("Outcome:     (未完成，可以 resume)")
		}
		for i, step := range st.Plan {
			fmt.Printf("  plan %d. %s\n", i+1, step)
		}
		if answer := st.LastAnswer(); answer != "" {
			fmt.Printf("\n%s\n", answer)
		}
		return nil
	},
}

var (
	resumeMode      string
	resumeReasoning bool
)

var sessionsResumeCmd = &cobra.Command{
	Use:   "resume <session_id>",
	Short: "从最后一个检查点继续运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openAgent(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.runner.Resume(ctx, args[0], agent.Mode(resumeMode))
		if err != nil {
			return fmt.Errorf("续跑失败: %w", err)
		}
		return printResponse(agent.BuildResponse(res, resumeReasoning), false)
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session_id>...",
	Short: "删除会话检查点",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openCheckpoints(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.checkpoints.Delete(ctx, id); err != nil {
				return fmt.Errorf("删除 %s 失败: %w", id, err)
			}
			fmt.Printf("已删除 %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsResumeCmd, sessionsDeleteCmd)
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "最多显示的会话数")
	sessionsResumeCmd.Flags().StringVar(&resumeMode, "mode", "", "续跑时切换执行模式: text/code")
	sessionsResumeCmd.Flags().BoolVar(&resumeReasoning, "reasoning", false, "输出推理过程")
}
