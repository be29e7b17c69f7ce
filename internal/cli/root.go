package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/wwwzy/PaperAgent/internal/config"
	"github.com/wwwzy/PaperAgent/internal/logging"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
)

// rootCmd 是没有子命令时调用的基础命令
var rootCmd = &cobra.Command{
	Use:   "paperagent",
	Short: "PaperAgent 是一个面向科研论文的检索增强问答 Agent",
	Long: `PaperAgent 导入 PDF 论文并建立向量索引，
通过带自检的 Agent 回答关于论文的问题，必要时执行代码生成图表。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并适当设置标志。
// 这由 main.main() 调用。它只需要对 rootCmd 调用一次。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnFinalize(func() {
		if closeLog != nil {
			_ = closeLog()
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件（默认按 ./config.yaml、$HOME/.paperagent/config.yaml 搜索）")
}

// initConfig 读取配置文件和环境变量（如果已设置），并初始化日志。
func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger, closeLog, err = logging.Setup(cfg.Log)
	if err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
}
