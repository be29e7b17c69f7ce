package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const (
	codeRetryFeedback = "Your previous reply did not produce a figure or file. Call the execute_code tool with Python code that generates the requested output."
	textRetryFeedback = "Your previous answer was not supported by the retrieved evidence or did not address the question. Answer again using only information from the tool results, and say so if the information is not available."
)

// nodes 持有各节点的依赖。每个节点接收并返回 AgentState 的副本。
type nodes struct {
	comps      Components
	cfg        Config
	directives *directives

	// text 模式绑定的工具不含 execute_code
	textModel model.ToolCallingChatModel
	codeModel model.ToolCallingChatModel
	textTools *compose.ToolsNode
	codeTools *compose.ToolsNode

	logger   *slog.Logger
	observer Observer
}

// PlannerNode 生成计划并装入新的系统指令。规划失败不影响运行，退化为空计划。
func (n *nodes) PlannerNode(ctx context.Context, state AgentState) (AgentState, error) {
	objective := plannerObjective(state.Question, state.Mode, len(state.PaperIDs) > 0)
	steps, err := n.comps.Planner.Plan(ctx, objective)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		n.logger.Warn("planner failed, continuing without plan", "session_id", state.SessionID, "err", err)
		steps = nil
	}
	state.Plan = steps

	msgs, err := n.directives.apply(ctx, state)
	if err != nil {
		return state, err
	}
	state.Messages = msgs
	return state, nil
}

// AgentNode 刷新系统指令后调用模型，追加回复并填充 NextStepToolCalls
func (n *nodes) AgentNode(ctx context.Context, state AgentState) (AgentState, error) {
	msgs, err := n.directives.apply(ctx, state)
	if err != nil {
		return state, err
	}

	cm := n.textModel
	if state.Mode == ModeCode {
		cm = n.codeModel
	}
	// 这里使用 Generate 而不是 Stream，因为我们需要完整的 ToolCalls 信息来做路由决策
	aiMsg, err := cm.Generate(ctx, msgs)
	if err != nil {
		return state, fmt.Errorf("chat model generate failed: %w", err)
	}

	if len(aiMsg.ToolCalls) == 0 && state.Mode == ModeCode && n.cfg.CodeFallback && len(state.Artifacts) == 0 {
		if call, ok := fallbackToolCall(aiMsg.Content); ok {
			n.logger.Warn("model described code without calling execute_code, running it directly",
				"session_id", state.SessionID, "call_id", call.ID)
			n.observer.ObserveFallback()
			aiMsg = withFallbackCall(aiMsg, call)
		}
	}

	state.Messages = append(msgs, aiMsg)
	state.NextStepToolCalls = aiMsg.ToolCalls
	state.LatestToolOutputs = nil
	return state, nil
}

// ToolsNode 执行本轮全部工具调用，工具按顺序执行
func (n *nodes) ToolsNode(ctx context.Context, state AgentState) (AgentState, error) {
	tn := n.textTools
	if state.Mode == ModeCode {
		tn = n.codeTools
	}
	outputs, err := tn.Invoke(toolContext(ctx, state), ConvertStateToToolsInput(state))
	if err != nil {
		return state, fmt.Errorf("invoke tools: %w", err)
	}
	return ConvertToolsOutputToState(state, outputs), nil
}

// GradeDocumentsNode 解析本轮工具输出并决定是否相关。
// 含产物的输出直接视为相关；否则对原始输出评分一次（或按配置逐条评分）。
func (n *nodes) GradeDocumentsNode(ctx context.Context, state AgentState) (AgentState, error) {
	r := normalizeRound(state.LatestToolOutputs)

	if r.hasArtifact() {
		state.IsRelevant = boolPtr(true)
		state.Documents = r.documents
		state.Artifacts = append(append([]Artifact(nil), state.Artifacts...), r.artifacts...)
		n.logger.Debug("artifact produced, skipping relevance grading",
			"session_id", state.SessionID, "artifacts", len(state.Artifacts))
		return state, nil
	}

	if len(state.LatestToolOutputs) == 0 {
		state.IsRelevant = boolPtr(false)
		return state, nil
	}

	relevant, docs, err := n.gradeRelevance(ctx, state.Question, r)
	if err != nil {
		return state, err
	}
	state.IsRelevant = boolPtr(relevant)
	if relevant {
		state.Documents = docs
	}
	n.logger.Debug("documents graded", "session_id", state.SessionID, "relevant", relevant, "documents", len(docs))
	return state, nil
}

func (n *nodes) gradeRelevance(ctx context.Context, question string, r round) (bool, []Document, error) {
	if n.cfg.RelevanceGrading != GradePerDocument {
		ok, err := n.comps.Relevance.Grade(ctx, r.raw, question)
		if err != nil {
			return false, nil, fmt.Errorf("grade documents: %w", err)
		}
		n.observer.ObserveGrade("relevance", ok)
		return ok, r.documents, nil
	}

	kept := make([]Document, 0, len(r.documents))
	for _, d := range r.documents {
		ok, err := n.comps.Relevance.Grade(ctx, d.Content, question)
		if err != nil {
			return false, nil, fmt.Errorf("grade document: %w", err)
		}
		n.observer.ObserveGrade("relevance", ok)
		if ok {
			kept = append(kept, d)
		}
	}
	return len(kept) > 0, kept, nil
}

// GradeGenerationNode 判定候选回答是否可接受。
// code 模式只看是否已有产物；text 模式先做幻觉评分，通过后才评回答是否切题。
func (n *nodes) GradeGenerationNode(ctx context.Context, state AgentState) (AgentState, error) {
	accepted, err := n.acceptable(ctx, state)
	if err != nil {
		return state, err
	}
	if accepted {
		state.IsSupported = boolPtr(true)
		return state, nil
	}

	state.RetryCount++
	state.IsSupported = boolPtr(false)
	n.observer.ObserveRetry(string(state.Mode))

	if state.RetryCount > n.cfg.MaxRetries {
		canAccept := state.Mode != ModeCode || len(state.Artifacts) > 0
		if n.cfg.OnRetryExhausted == ExhaustAccept && canAccept {
			state.IsSupported = boolPtr(true)
			state.ForceAccepted = true
		}
		n.logger.Warn("retry budget exhausted", "session_id", state.SessionID,
			"retry_count", state.RetryCount, "accepted", state.ForceAccepted)
		return state, nil
	}

	feedback := textRetryFeedback
	if state.Mode == ModeCode {
		feedback = codeRetryFeedback
	}
	state.Messages = append(state.Messages, schema.UserMessage(feedback))
	n.logger.Info("generation rejected, retrying", "session_id", state.SessionID, "retry_count", state.RetryCount)
	return state, nil
}

func (n *nodes) acceptable(ctx context.Context, state AgentState) (bool, error) {
	if state.Mode == ModeCode {
		return len(state.Artifacts) > 0, nil
	}

	answer := state.LastAnswer()
	grounded, err := n.comps.Hallucination.Grade(ctx, toolFacts(state.Messages), answer)
	if err != nil {
		return false, fmt.Errorf("grade hallucination: %w", err)
	}
	n.observer.ObserveGrade("hallucination", grounded)
	if !grounded {
		return false, nil
	}

	adequate, err := n.comps.Adequacy.Grade(ctx, state.Question, answer)
	if err != nil {
		return false, fmt.Errorf("grade answer: %w", err)
	}
	n.observer.ObserveGrade("adequacy", adequate)
	return adequate, nil
}

// RewriteNode 改写原始问题并作为新的用户消息注入，不触碰重试计数、文档和产物
func (n *nodes) RewriteNode(ctx context.Context, state AgentState) (AgentState, error) {
	q, err := n.comps.Rewriter.Rewrite(ctx, state.Question)
	if err != nil {
		return state, err
	}
	state.Messages = append(state.Messages, schema.UserMessage(q))
	n.observer.ObserveRewrite()
	n.logger.Debug("question rewritten", "session_id", state.SessionID, "rewrite", q)
	return state, nil
}
