package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/retention"
	"github.com/wwwzy/PaperAgent/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd 启动 HTTP 服务和后台清理
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 PaperAgent HTTP 服务",
	Long: `启动 PaperAgent HTTP 服务。
这将初始化数据库、向量库和 Agent，并在后台定期清理过期的检查点、审计记录和图表文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 上下文用于优雅退出
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. 初始化存储与 Agent
		fmt.Println("正在初始化存储与 Agent...")
		a, err := openAgent(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// 3. 初始化清理任务
		fmt.Println("正在初始化清理任务...")
		collector, err := retention.NewCollector(a.store, cfg.Retention)
		if err != nil {
			return fmt.Errorf("创建 retention 采集器失败: %w", err)
		}
		mgr := retention.NewManager(cfg.Retention).WithCollector(collector)
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动清理任务失败: %w", err)
		}

		// 4. 启动 HTTP 服务
		srvCfg := cfg.Server
		if serveAddr != "" {
			srvCfg.Addr = serveAddr
		}
		srv, err := server.New(srvCfg, server.Deps{
			Runner:       a.runner,
			Papers:       a.papers,
			Metrics:      a.metrics,
			ExportDir:    cfg.Sandbox.ExportDir,
			PublicPrefix: cfg.Sandbox.PublicPrefix,
			Logger:       logging.WithComponent(logger, "http"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("PaperAgent 已启动，监听 %s。按 Ctrl+C 停止。\n", srvCfg.Addr)
		runErr := srv.Run(ctx)

		// 5. 优雅停止
		fmt.Println("正在关闭...")
		stop()
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("清理任务停止时发生错误: %w", err)
		}
		if runErr != nil {
			return runErr
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址，覆盖 server.addr")
}
