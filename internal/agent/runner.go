package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
)

// Request 是一次提问
type Request struct {
	SessionID string
	Question  string
	PaperIDs  []string
	Mode      Mode
}

// Result 是一次运行结束时的状态和结局
type Result struct {
	State   AgentState
	Outcome Outcome
}

// Runner 驱动编排图运行，负责新运行、断点续跑和终态检查点
type Runner struct {
	graph    compose.Runnable[AgentState, AgentState]
	store    checkpoint.Store
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewRunner 构建编排图。store 为空时不写检查点，也不支持续跑。
func NewRunner(ctx context.Context, comps Components, cfg Config, store checkpoint.Store, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		store:    checkpoint.Serialized(store),
		cfg:      cfg,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	g, err := BuildGraph(ctx, comps, cfg, r.store, r.logger, r.observer)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	r.graph = g
	return r, nil
}

func (r *Runner) Config() Config {
	return r.cfg
}

// Run 为一个问题开启新的运行，同一会话之前的检查点会被覆盖
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	mode := req.Mode
	if mode == "" {
		mode = r.cfg.ExecutionMode
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.logger.Info("run started", "session_id", sessionID, "mode", mode, "papers", len(req.PaperIDs))
	return r.invoke(ctx, NewState(sessionID, question, req.PaperIDs, mode))
}

// Resume 从会话最后一个检查点之后继续执行。mode 非空时切换执行模式，
// 下一次 agent 调用即使用新模式的系统指令。
func (r *Runner) Resume(ctx context.Context, sessionID string, mode Mode) (*Result, error) {
	st, err := r.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Finished() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrSessionFinished, sessionID, st.Outcome)
	}
	next, err := resumeTarget(*st, r.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	if next == compose.END {
		return nil, fmt.Errorf("%w: %s", ErrSessionFinished, sessionID)
	}
	if mode != "" {
		if st.Mode, err = ParseMode(string(mode)); err != nil {
			return nil, err
		}
	}

	r.logger.Info("run resumed", "session_id", sessionID, "from", st.LastNode, "next", next, "steps", st.Steps)
	return r.invoke(ctx, *st)
}

// Load 读取会话最新的检查点
func (r *Runner) Load(ctx context.Context, sessionID string) (*AgentState, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: checkpointing disabled", checkpoint.ErrNotFound)
	}
	snap, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var st AgentState
	if err := json.Unmarshal(snap.State, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", sessionID, err)
	}
	return &st, nil
}

func (r *Runner) invoke(ctx context.Context, st AgentState) (*Result, error) {
	start := time.Now()
	rec := &recorder{last: st}
	out, err := r.graph.Invoke(withRecorder(ctx, rec), st)

	var outcome Outcome
	switch {
	case err == nil:
		outcome = outcomeOf(out)
	case ctx.Err() != nil:
		// 已提交的步骤都在检查点里，可以稍后续跑
		r.logger.Warn("run cancelled", "session_id", st.SessionID, "err", ctx.Err())
		return nil, ctx.Err()
	default:
		last, exhausted := rec.snapshot()
		if !exhausted && !errors.Is(err, ErrStepBudgetExhausted) && !errors.Is(err, compose.ErrExceedMaxSteps) {
			r.observer.ObserveRun("failed", time.Since(start))
			r.logger.Error("run failed", "session_id", st.SessionID, "err", err)
			return nil, err
		}
		out = last
		outcome = OutcomeStepBudgetExhausted
	}

	out.Outcome = outcome
	if err := saveCheckpoint(context.WithoutCancel(ctx), r.store, out); err != nil {
		r.logger.Warn("save final checkpoint failed", "session_id", out.SessionID, "err", err)
	}
	r.observer.ObserveRun(string(outcome), time.Since(start))
	r.logger.Info("run finished", "session_id", out.SessionID, "outcome", outcome,
		"retry_count", out.RetryCount, "steps", out.Steps, "artifacts", len(out.Artifacts))
	return &Result{State: out, Outcome: outcome}, nil
}

func outcomeOf(st AgentState) Outcome {
	switch {
	case st.ForceAccepted:
		return OutcomeAcceptedAfterRetries
	case isTrue(st.IsSupported):
		return OutcomeSupported
	default:
		return OutcomeRetryExhausted
	}
}
