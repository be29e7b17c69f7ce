package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
	"github.com/wwwzy/PaperAgent/internal/ingest"
	"github.com/wwwzy/PaperAgent/internal/llm"
	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/metrics"
	"github.com/wwwzy/PaperAgent/internal/sandbox"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/tools"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

// app 持有一次命令执行期间打开的资源，按需逐层初始化
type app struct {
	store       *storage.Storage
	vectors     *vectorstore.Store
	papers      *ingest.Service
	checkpoints checkpoint.Store
	runner      *agent.Runner
	metrics     *metrics.Metrics
}

func openStorage(ctx context.Context) (*app, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return &app{store: store}, nil
}

// openPapers 在存储之上打开向量库和导入服务
func openPapers(ctx context.Context) (*app, error) {
	a, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	embed, err := vectorstore.NewEmbeddingFunc(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化 embedding 失败: %w", err)
	}
	a.vectors, err = vectorstore.New(cfg.Vector, embed)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("打开向量库失败: %w", err)
	}
	a.papers, err = ingest.NewService(cfg.Ingest, a.store, a.vectors, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("初始化导入服务失败: %w", err)
	}
	return a, nil
}

// openAgent 打开全部依赖并构建 Runner
func openAgent(ctx context.Context) (*app, error) {
	a, err := openPapers(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.buildRunner(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildRunner(ctx context.Context) error {
	a.metrics = metrics.New()

	chat, err := llm.NewChatModel(ctx, cfg.Ark)
	if err != nil {
		return fmt.Errorf("初始化对话模型失败: %w", err)
	}
	grader, err := llm.NewGraderModel(ctx, cfg.Ark)
	if err != nil {
		return fmt.Errorf("初始化评分模型失败: %w", err)
	}
	executor, err := sandbox.New(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("初始化代码沙箱失败: %w", err)
	}

	set, err := tools.NewSet(ctx, tools.Deps{
		Searcher:   a.vectors,
		Expander:   llm.NewExpander(grader),
		Summarizer: llm.NewSummarizer(grader),
		Executor:   executor,
		Retrieve:   cfg.Retrieval,
		Arxiv: tools.ArxivConfig{
			BaseURL:    cfg.Search.ArxivBaseURL,
			MaxResults: cfg.Search.MaxResults,
		},
		WebSearch: tools.WebSearchConfig{
			APIKey:  cfg.Search.SerperAPIKey,
			BaseURL: cfg.Search.SerperBaseURL,
		},
		PublicPrefix: cfg.Sandbox.PublicPrefix,
		Audit: tools.AuditOptions{
			Store:    a.store,
			Observer: a.metrics,
			Timeout:  cfg.Agent.ToolTimeout,
			Logger:   logging.WithComponent(logger, "tools"),
		},
	})
	if err != nil {
		return fmt.Errorf("初始化工具失败: %w", err)
	}

	comps, err := agent.NewComponents(chat, grader, set)
	if err != nil {
		return err
	}

	a.checkpoints, err = checkpoint.Open(ctx, cfg.Checkpoint, a.store)
	if err != nil {
		return fmt.Errorf("打开检查点存储失败: %w", err)
	}

	a.runner, err = agent.NewRunner(ctx, comps, cfg.Agent, a.checkpoints,
		agent.WithLogger(logging.WithComponent(logger, "agent")),
		agent.WithObserver(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("构建 Agent 失败: %w", err)
	}
	return nil
}

// openCheckpoints 只打开检查点存储，sessions 命令使用
func openCheckpoints(ctx context.Context) (*app, error) {
	a, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.checkpoints, err = checkpoint.Open(ctx, cfg.Checkpoint, a.store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("打开检查点存储失败: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if c, ok := a.checkpoints.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
