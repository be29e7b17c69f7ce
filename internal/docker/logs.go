package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerOutput 读取容器的 stdout/stderr（非 TTY 模式下为多路复用流）
func containerOutput(ctx context.Context, containerID string, maxBytes int) (string, string, error) {
	cli, err := GetClient()
	if err != nil {
		return "", "", err
	}

	reader, err := cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get logs for %s: %w", shortID(containerID), err)
	}
	defer reader.Close()

	var outBuf, errBuf strings.Builder
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil {
		return "", "", fmt.Errorf("stdcopy failed (container might be using TTY): %w", err)
	}

	return truncateTail(outBuf.String(), maxBytes), truncateTail(errBuf.String(), maxBytes), nil
}

// truncateTail 保留输出末尾，脚本的报错通常在最后
func truncateTail(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return "...(truncated)...\n" + s[len(s)-maxLen:]
}
