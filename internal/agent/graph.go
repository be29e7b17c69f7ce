package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

type nodeFunc = func(ctx context.Context, state AgentState) (AgentState, error)

// graphBuilder 把节点、步数预算和检查点写入组装成一张可运行的图
type graphBuilder struct {
	n        *nodes
	cfg      Config
	store    checkpoint.Store
	logger   *slog.Logger
	observer Observer
}

// BuildGraph 构建 Agent 的处理流程图：
// entry -> planner -> agent ⇄ tools -> grade_documents -> (agent | rewrite) ... -> grade_generation -> END
// 除 entry 外的每条边都由 transitions 表决定。
func BuildGraph(ctx context.Context, comps Components, cfg Config, store checkpoint.Store, logger *slog.Logger, observer Observer) (compose.Runnable[AgentState, AgentState], error) {
	if err := comps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	n, err := newNodes(ctx, comps, cfg, logger, observer)
	if err != nil {
		return nil, err
	}
	b := &graphBuilder{n: n, cfg: cfg, store: store, logger: logger, observer: observer}

	g := compose.NewGraph[AgentState, AgentState]()

	// 1. 添加节点
	// entry 不计步数，只负责选择起点（新运行从 planner 开始，续跑从检查点之后开始）
	if err := g.AddLambdaNode(NodeEntry, compose.InvokableLambda(b.entry)); err != nil {
		return nil, err
	}
	steps := map[string]nodeFunc{
		NodePlanner:         n.PlannerNode,
		NodeAgent:           n.AgentNode,
		NodeTools:           n.ToolsNode,
		NodeGradeDocuments:  n.GradeDocumentsNode,
		NodeGradeGeneration: n.GradeGenerationNode,
		NodeRewrite:         n.RewriteNode,
	}
	for name, fn := range steps {
		if err := g.AddLambdaNode(name, compose.InvokableLambda(b.wrap(name, fn))); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}

	// 2. 添加边
	if err := g.AddEdge(compose.START, NodeEntry); err != nil {
		return nil, err
	}
	entryTargets := successors(NodeGradeGeneration)
	for _, name := range []string{NodePlanner, NodeAgent, NodeTools, NodeGradeDocuments, NodeGradeGeneration, NodeRewrite} {
		entryTargets[name] = true
	}
	delete(entryTargets, compose.END)
	if err := g.AddBranch(NodeEntry, compose.NewGraphBranch(b.route(""), entryTargets)); err != nil {
		return nil, err
	}

	// 3. 添加分支：每个节点的后继都来自 transitions 表
	for name := range steps {
		if err := g.AddBranch(name, compose.NewGraphBranch(b.route(name), successors(name))); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", name, err)
		}
	}

	// 4. 编译 Graph。步数预算由节点包装器执行，这里的上限只是兜底
	return g.Compile(ctx,
		compose.WithGraphName("paperagent"),
		compose.WithMaxRunSteps(cfg.StepBudget*2+10),
	)
}

func newNodes(ctx context.Context, comps Components, cfg Config, logger *slog.Logger, observer Observer) (*nodes, error) {
	textInfos, err := comps.Tools.Infos(ctx, tools.NameExecuteCode)
	if err != nil {
		return nil, fmt.Errorf("get tools info failed: %w", err)
	}
	codeInfos, err := comps.Tools.Infos(ctx)
	if err != nil {
		return nil, fmt.Errorf("get tools info failed: %w", err)
	}

	// 将工具信息绑定到 chatModel，两种模式各一份
	textModel, err := comps.ChatModel.WithTools(textInfos)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}
	codeModel, err := comps.ChatModel.WithTools(codeInfos)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}

	textTools, err := NewToolsNode(ctx, comps.Tools.Tools(tools.NameExecuteCode))
	if err != nil {
		return nil, fmt.Errorf("create tools node failed: %w", err)
	}
	codeTools, err := NewToolsNode(ctx, comps.Tools.Tools())
	if err != nil {
		return nil, fmt.Errorf("create tools node failed: %w", err)
	}

	return &nodes{
		comps:      comps,
		cfg:        cfg,
		directives: newDirectives(),
		textModel:  textModel,
		codeModel:  codeModel,
		textTools:  textTools,
		codeTools:  codeTools,
		logger:     logger,
		observer:   observer,
	}, nil
}

func (b *graphBuilder) entry(_ context.Context, state AgentState) (AgentState, error) {
	return state, nil
}

// route 返回某节点的分支函数；node 为空表示 entry
func (b *graphBuilder) route(node string) func(context.Context, AgentState) (string, error) {
	return func(_ context.Context, state AgentState) (string, error) {
		if node == "" {
			return resumeTarget(state, b.cfg.MaxRetries)
		}
		next, err := Next(node, SignalOf(node, state, b.cfg.MaxRetries))
		if err != nil {
			return "", err
		}
		b.logger.Debug("transition", "session_id", state.SessionID, "from", node, "to", next,
			"retry_count", state.RetryCount, "steps", state.Steps)
		return next, nil
	}
}

// wrap 给节点加上统一的约束：
// 执行前检查取消和步数预算；执行中被取消则丢弃结果；
// 成功后记录节点名和步数，提交到 recorder 并写检查点。
func (b *graphBuilder) wrap(name string, fn nodeFunc) nodeFunc {
	return func(ctx context.Context, in AgentState) (AgentState, error) {
		rec := recorderFrom(ctx)
		if err := ctx.Err(); err != nil {
			return in, err
		}
		if in.Steps >= b.cfg.StepBudget {
			rec.markBudgetExhausted()
			b.logger.Warn("step budget exhausted", "session_id", in.SessionID, "node", name, "steps", in.Steps)
			return in, ErrStepBudgetExhausted
		}

		start := time.Now()
		out, err := fn(ctx, in)
		if ctx.Err() != nil {
			return in, ctx.Err()
		}
		if err != nil {
			return in, fmt.Errorf("%s: %w", name, err)
		}

		out.LastNode = name
		out.Steps = in.Steps + 1
		b.observer.ObserveNode(name, time.Since(start))
		rec.commit(out)
		b.save(ctx, out)
		return out, nil
	}
}

// save 写检查点，失败只记录日志
func (b *graphBuilder) save(ctx context.Context, state AgentState) {
	if err := saveCheckpoint(ctx, b.store, state); err != nil {
		b.logger.Warn("save checkpoint failed", "session_id", state.SessionID, "node", state.LastNode, "err", err)
	}
}

func saveCheckpoint(ctx context.Context, store checkpoint.Store, state AgentState) error {
	if store == nil || state.SessionID == "" {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return store.Save(ctx, checkpoint.Snapshot{
		SessionID: state.SessionID,
		Node:      state.LastNode,
		Step:      state.Steps,
		State:     data,
	})
}
