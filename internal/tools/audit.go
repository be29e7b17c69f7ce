package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/storage"
)

const (
	auditTruncateLimit = 2048
)

// CallObserver 接收每次工具调用的结果，metrics 包实现它
type CallObserver interface {
	ObserveToolCall(tool, status string, elapsed time.Duration)
}

// AuditedTool 在工具执行前后写审计记录，并把工具错误转换为文本结果，
// 保证编排层总能拿到一条格式正确的工具消息。
type AuditedTool struct {
	impl     tool.InvokableTool
	store    *storage.Storage
	observer CallObserver
	timeout  time.Duration
	logger   *slog.Logger
}

type AuditOptions struct {
	Store    *storage.Storage
	Observer CallObserver
	// Timeout 为单次工具调用的上限，0 表示不限制
	Timeout time.Duration
	Logger  *slog.Logger
}

// Wrap 包装工具。store 为空时只做错误转换，不写审计。
func Wrap(t tool.InvokableTool, opts AuditOptions) *AuditedTool {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditedTool{
		impl:     t,
		store:    opts.Store,
		observer: opts.Observer,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

func (t *AuditedTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.impl.Info(ctx)
}

func (t *AuditedTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	action := "unknown"
	if info, err := t.impl.Info(ctx); err == nil && info != nil {
		action = info.Name
	}

	now := time.Now().UTC()
	record := &storage.AuditRecord{
		TraceID:    TraceID(ctx),
		Action:     action,
		ParamsJSON: truncate(argumentsInJSON, auditTruncateLimit),
		Status:     "running",
		StartedAt:  now,
	}
	if t.store != nil {
		// 审计失败不阻断工具执行
		if err := t.store.InsertAuditRecord(ctx, record); err != nil {
			t.logger.Warn("insert audit record failed", "tool", action, "err", err)
		}
	}

	// 模型偶尔输出不完整的参数（例如只有 "{"），补全为 {}
	safeArgs := argumentsInJSON
	if safeArgs == "{" || safeArgs == "" {
		safeArgs = "{}"
	}

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	result, runErr := t.impl.InvokableRun(runCtx, safeArgs, opts...)

	finishedAt := time.Now().UTC()
	status := "success"
	var errMsg *string
	if runErr != nil {
		status = "failed"
		e := truncate(runErr.Error(), auditTruncateLimit)
		errMsg = &e
		result = PlainText(fmt.Sprintf("Tool %s failed: %v", action, runErr)).Encode()
		t.logger.Warn("tool failed", "tool", action, "trace_id", record.TraceID, "err", runErr)
	}
	r := truncate(result, auditTruncateLimit)

	if t.observer != nil {
		t.observer.ObserveToolCall(action, status, finishedAt.Sub(now))
	}

	// 只有在 Insert 成功且有了 ID 后，才能 Update
	if t.store != nil && record.ID != 0 {
		update := storage.AuditUpdate{
			Status:       &status,
			ResultJSON:   &r,
			ErrorMessage: errMsg,
			FinishedAt:   &finishedAt,
		}
		if err := t.store.UpdateAuditRecord(context.WithoutCancel(ctx), record.ID, update); err != nil {
			t.logger.Warn("update audit record failed", "tool", action, "err", err)
		}
	}

	// 调用方取消时把取消原样交还编排层，不合并这一轮结果
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return result, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
