package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "查看和管理已导入的论文",
}

var papersListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已导入的论文",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		papers, err := a.store.ListPapers(ctx, "", 0)
		if err != nil {
			return err
		}
		if len(papers) == 0 {
			fmt.Println("还没有导入任何论文。")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Paper ID\tFilename\tPages\tChunks\tTokens\tStatus\tUploaded")
		for _, p := range papers {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				p.ID, p.Filename, p.Pages, p.Chunks, p.Tokens, p.Status, p.UploadedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var papersDeleteCmd = &cobra.Command{
	Use:   "delete <paper_id>...",
	Short: "删除论文及其分块",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openPapers(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.papers.Delete(ctx, id); err != nil {
				return fmt.Errorf("删除 %s 失败: %w", id, err)
			}
			fmt.Printf("已删除 %s\n", id)
		}
		return nil
	},
}

var chunksLimit int

var papersChunksCmd = &cobra.Command{
	Use:   "chunks <paper_id>",
	Short: "查看论文的分块",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openPapers(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		chunks, err := a.papers.Chunks(ctx, args[0])
		if err != nil {
			return err
		}
		for i, c := range chunks {
			if chunksLimit > 0 && i >= chunksLimit {
				fmt.Printf("... 还有 %d 个分块\n", len(chunks)-chunksLimit)
				break
			}
			text := strings.Join(strings.Fields(c.Text), " ")
			if r := []rune(text); len(r) > 160 {
				text = string(r[:160]) + "..."
			}
			fmt.Printf("[%s] page %d · %s\n    %s\n", c.ID, c.Page, c.Section, text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(papersCmd)
	papersCmd.AddCommand(papersListCmd, papersDeleteCmd, papersChunksCmd)
	papersChunksCmd.Flags().IntVar(&chunksLimit, "limit", 20, "最多显示的分块数，0 表示全部")
}
