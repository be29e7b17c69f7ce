package agent

import (
	"context"
	"sync"
)

type recorderKey struct{}

// recorder 保存一次运行中最后提交的状态。
// 步数耗尽或调用方取消时，Runner 从这里取回已提交的进度。
type recorder struct {
	mu              sync.Mutex
	last            AgentState
	budgetExhausted bool
}

func withRecorder(ctx context.Context, rec *recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recorderFrom(ctx context.Context) *recorder {
	if v, ok := ctx.Value(recorderKey{}).(*recorder); ok {
		return v
	}
	return nil
}

func (r *recorder) commit(st AgentState) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.last = st
	r.mu.Unlock()
}

func (r *recorder) markBudgetExhausted() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.budgetExhausted = true
	r.mu.Unlock()
}

func (r *recorder) snapshot() (AgentState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.budgetExhausted
}
