package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwwzy/PaperAgent/internal/retention"
	"github.com/wwwzy/PaperAgent/internal/storage"
)

// storageCmd represents the storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "管理存储和数据库",
	Long:  `提供查看数据库概况、清理检查点、审计记录和图表文件的命令。`,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示数据库统计概况",
	Run:   runInfo,
}

// pruneAuditCmd represents the prune-audit command
var pruneAuditCmd = &cobra.Command{
	Use:   "prune-audit",
	Short: "清理审计记录",
	Long:  `删除早于指定天数的工具调用审计记录。`,
	Run: func(cmd *cobra.Command, args []string) {
		runPruneBefore(cmd, "audit records", keepAuditDays, func(ctx context.Context, s *storage.Storage, before time.Time, limit int) (int64, error) {
			return s.DeleteAuditRecordsBeforeLimited(ctx, before, limit)
		})
	},
}

// pruneCheckpointsCmd represents the prune-checkpoints command
var pruneCheckpointsCmd = &cobra.Command{
	Use:   "prune-checkpoints",
	Short: "清理会话检查点",
	Long:  `删除最后更新早于指定天数的会话检查点（仅 sqlite 后端，redis 依赖 TTL 过期）。`,
	Run: func(cmd *cobra.Command, args []string) {
		runPruneBefore(cmd, "checkpoints", keepCheckpointDays, func(ctx context.Context, s *storage.Storage, before time.Time, limit int) (int64, error) {
			return s.DeleteCheckpointsBeforeLimited(ctx, before, limit)
		})
	},
}

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "根据配置文件立即执行一轮清理",
	Long:  `忽略定时任务间隔，立即按 retention 配置清理检查点、审计记录和过期图表文件。`,
	Run:   runPrune,
}

var (
	keepAuditDays      int
	keepCheckpointDays int
)

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(infoCmd)
	storageCmd.AddCommand(pruneAuditCmd)
	storageCmd.AddCommand(pruneCheckpointsCmd)
	storageCmd.AddCommand(pruneCmd)

	pruneAuditCmd.Flags().IntVar(&keepAuditDays, "days", 0, "保留最近 N 天的记录")
	pruneCheckpointsCmd.Flags().IntVar(&keepCheckpointDays, "days", 0, "保留最近 N 天的检查点")
}

type deleteBeforeFunc func(ctx context.Context, s *storage.Storage, before time.Time, limit int) (int64, error)

func runPruneBefore(cmd *cobra.Command, what string, days int, del deleteBeforeFunc) {
	ctx := context.Background()

	if days <= 0 {
		fmt.Println("Error: must specify --days")
		cmd.Usage()
		os.Exit(1)
	}

	fmt.Println("Opening database...")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	before := time.Now().UTC().AddDate(0, 0, -days)
	fmt.Printf("Pruning %s older than %d days (before %s)...\n", what, days, before.Format(time.RFC3339))

	var deleted int64
	for {
		n, err := del(ctx, store, before, cfg.Retention.BatchRows)
		if err != nil {
			fmt.Printf("Error pruning %s: %v\n", what, err)
			os.Exit(1)
		}
		deleted += n
		if n == 0 {
			break
		}
	}
	fmt.Printf("Prune completed. Deleted %d %s.\n", deleted, what)
}

func runPrune(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	fmt.Println("Opening database...")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	collector, err := retention.NewCollector(store, cfg.Retention)
	if err != nil {
		fmt.Printf("Error creating collector: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Policy: checkpoints %s, audit %s, artifacts %s\n",
		cfg.Retention.KeepCheckpoints, cfg.Retention.KeepAudit, cfg.Retention.KeepArtifacts)
	if err := collector.RunOnce(ctx, time.Now().UTC()); err != nil {
		fmt.Printf("Prune failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Prune completed successfully.")

	if counts, err := store.CountRows(ctx); err == nil {
		fmt.Printf("Remaining Checkpoints: %d\n", counts.Checkpoints)
		fmt.Printf("Remaining Audit Records: %d\n", counts.AuditRecords)
	}
}

func runInfo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	// 1. 获取数据库文件信息
	dbPath := cfg.Storage.Path
	if !filepath.IsAbs(dbPath) {
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
	}

	var dbSizeStr string
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			dbSizeStr = "Not Found (Will be created on first run)"
		} else {
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		}
	} else {
		sizeMB := float64(info.Size()) / 1024 / 1024
		dbSizeStr = fmt.Sprintf("%.2f MB (%s)", sizeMB, dbPath)
	}

	// 2. 连接数据库
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Database File: %s\n", dbSizeStr)
		fmt.Printf("Error opening database: %v\n", err)
		return
	}
	defer store.Close()

	// 3. 获取统计信息
	counts, err := store.CountRows(ctx)
	if err != nil {
		fmt.Printf("Error counting rows: %v\n", err)
	}

	// 4. 格式化输出
	fmt.Printf("Database File: %s\n", dbSizeStr)
	fmt.Printf("Vector Store:  %s\n", cfg.Vector.Path)
	fmt.Printf("Checkpoints:   %s backend\n\n", cfg.Checkpoint.Backend)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Table\tCount")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Papers\t%d\n", counts.Papers)
	fmt.Fprintf(w, "Checkpoints\t%d\n", counts.Checkpoints)
	fmt.Fprintf(w, "AuditRecords\t%d\n", counts.AuditRecords)
	w.Flush()
}
