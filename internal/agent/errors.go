package agent

import "errors"

var (
	// ErrStepBudgetExhausted 节点执行次数达到上限
	ErrStepBudgetExhausted = errors.New("step budget exhausted")
	// ErrSessionFinished 会话的检查点已是终态，不能续跑
	ErrSessionFinished = errors.New("session already finished")
	ErrInvalidMode     = errors.New("invalid execution mode")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrNoTransition    = errors.New("no transition")
)
