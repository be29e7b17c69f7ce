package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"golang.org/x/sync/errgroup"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf>...",
	Short: "导入一个或多个 PDF 论文",
	Long:  `解析 PDF、按语义分块并写入向量库。多个文件并发导入，单个文件失败不影响其他文件。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openPapers(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		workers := ingestWorkers
		if workers <= 0 {
			workers = cfg.Ingest.Workers
		}
		if workers <= 0 {
			workers = 2
		}

		type result struct {
			path  string
			paper *storage.Paper
			err   error
		}
		results := make([]result, len(args))
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, path := range args {
			g.Go(func() error {
				paper, err := ingestFile(gctx, a, path)
				mu.Lock()
				results[i] = result{path: path, paper: paper, err: err}
				mu.Unlock()
				// 只有取消才中断整批
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := 0
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "File\tPaper ID\tPages\tChunks\tStatus")
		fmt.Fprintln(w, "----\t--------\t-----\t------\t------")
		for _, r := range results {
			if r.err != nil {
				failed++
				fmt.Fprintf(w, "%s\t-\t-\t-\tfailed: %v\n", filepath.Base(r.path), r.err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", filepath.Base(r.path), r.paper.ID, r.paper.Pages, r.paper.Chunks, r.paper.Status)
		}
		w.Flush()

		if failed > 0 {
			return fmt.Errorf("%d/%d 个文件导入失败", failed, len(args))
		}
		return nil
	},
}

func ingestFile(ctx context.Context, a *app, path string) (*storage.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.papers.Ingest(ctx, filepath.Base(path), f)
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "并发导入数，默认取 ingest.workers")
}
