package agent

import (
	"fmt"

	"github.com/cloudwego/eino/compose"
)

const (
	NodeEntry           = "entry"
	NodePlanner         = "planner"
	NodeAgent           = "agent"
	NodeTools           = "tools"
	NodeGradeDocuments  = "grade_documents"
	NodeGradeGeneration = "grade_generation"
	NodeRewrite         = "rewrite"
)

// Signal 是节点执行后由状态推导出的路由信号
type Signal string

const (
	SignalDone           Signal = "done"
	SignalToolCalls      Signal = "tool_calls"
	SignalFinal          Signal = "final"
	SignalRelevant       Signal = "relevant"
	SignalIrrelevant     Signal = "irrelevant"
	SignalSupported      Signal = "supported"
	SignalUnsupported    Signal = "unsupported"
	SignalRetryExhausted Signal = "retry_exhausted"
)

// transitions 是整张图的邻接表，(节点, 信号) -> 下一节点。
// planner 只能从 entry 进入，任何节点都不会回到 planner。
var transitions = map[string]map[Signal]string{
	NodePlanner: {
		SignalDone: NodeAgent,
	},
	NodeAgent: {
		SignalToolCalls: NodeTools,
		SignalFinal:     NodeGradeGeneration,
	},
	NodeTools: {
		SignalDone: NodeGradeDocuments,
	},
	NodeGradeDocuments: {
		SignalRelevant:   NodeAgent,
		SignalIrrelevant: NodeRewrite,
	},
	NodeRewrite: {
		SignalDone: NodeAgent,
	},
	NodeGradeGeneration: {
		SignalSupported:      compose.END,
		SignalRetryExhausted: compose.END,
		SignalUnsupported:    NodeAgent,
	},
}

// Next 纯函数：根据当前节点和信号给出下一节点
func Next(node string, sig Signal) (string, error) {
	edges, ok := transitions[node]
	if !ok {
		return "", fmt.Errorf("%w: unknown node %q", ErrNoTransition, node)
	}
	next, ok := edges[sig]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrNoTransition, node, sig)
	}
	return next, nil
}

// SignalOf 从节点刚提交的状态推导信号
func SignalOf(node string, st AgentState, maxRetries int) Signal {
	switch node {
	case NodeAgent:
		if len(st.NextStepToolCalls) > 0 {
			return SignalToolCalls
		}
		return SignalFinal
	case NodeGradeDocuments:
		if isTrue(st.IsRelevant) {
			return SignalRelevant
		}
		return SignalIrrelevant
	case NodeGradeGeneration:
		if isTrue(st.IsSupported) {
			return SignalSupported
		}
		if st.RetryCount > maxRetries {
			return SignalRetryExhausted
		}
		return SignalUnsupported
	default:
		return SignalDone
	}
}

// successors 列出某节点所有可能的后继，用于声明 Graph 分支
func successors(node string) map[string]bool {
	out := make(map[string]bool)
	for _, next := range transitions[node] {
		out[next] = true
	}
	return out
}

// resumeTarget 返回检查点之后应当执行的节点；没有已提交节点时从 planner 开始
func resumeTarget(st AgentState, maxRetries int) (string, error) {
	if st.LastNode == "" {
		return NodePlanner, nil
	}
	return Next(st.LastNode, SignalOf(st.LastNode, st, maxRetries))
}
