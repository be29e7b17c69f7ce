package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// ErrTimeout 容器在限定时间内未退出
var ErrTimeout = errors.New("container run timed out")

// RunOptions 描述一次性执行容器的参数
type RunOptions struct {
	Image      string
	Cmd        []string
	Env        []string
	WorkingDir string
	// Binds 形如 "/host/dir:/work"
	Binds []string
	// Platform 形如 linux/amd64，为空时由 daemon 决定
	Platform    string
	MemoryBytes int64
	NanoCPUs    int64
	// DisableNetwork 为 true 时使用 none 网络
	DisableNetwork bool
	Timeout        time.Duration
	// MaxOutputBytes 限制 stdout/stderr 各自保留的尾部长度
	MaxOutputBytes int
}

type RunResult struct {
	ContainerID string
	ExitCode    int64
	Stdout      string
	Stderr      string
}

// RunOnce 创建并启动容器，等待退出后收集输出并删除容器
func RunOnce(ctx context.Context, opts RunOptions) (*RunResult, error) {
	cli, err := GetClient()
	if err != nil {
		return nil, err
	}
	if opts.Image == "" {
		return nil, errors.New("image is required")
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 10000
	}

	hostCfg := &container.HostConfig{
		Binds: opts.Binds,
		Resources: container.Resources{
			Memory:   opts.MemoryBytes,
			NanoCPUs: opts.NanoCPUs,
		},
	}
	if opts.DisableNetwork {
		hostCfg.NetworkMode = "none"
	}

	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:           opts.Image,
			Cmd:             opts.Cmd,
			Env:             opts.Env,
			WorkingDir:      opts.WorkingDir,
			NetworkDisabled: opts.DisableNetwork,
		},
		hostCfg,
		&network.NetworkingConfig{},
		parsePlatform(opts.Platform),
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	// 无论成功与否都强制删除；用独立 context，避免调用方取消后残留容器
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = cli.ContainerRemove(rmCtx, containerID, container.RemoveOptions{Force: true})
	}()

	if err := cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", shortID(containerID), err)
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result := &RunResult{ContainerID: shortID(containerID)}
	statusCh, errCh := cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("failed to wait container %s: %w", shortID(containerID), err)
		}
	case st := <-statusCh:
		result.ExitCode = st.StatusCode
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}

	stdout, stderr, err := containerOutput(ctx, containerID, opts.MaxOutputBytes)
	if err != nil {
		return nil, err
	}
	result.Stdout, result.Stderr = stdout, stderr
	return result, nil
}

func parsePlatform(s string) *v1.Platform {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	p := &v1.Platform{OS: parts[0]}
	if len(parts) > 1 {
		p.Architecture = parts[1]
	}
	if len(parts) > 2 {
		p.Variant = parts[2]
	}
	return p
}

// shortID 与 docker ps 一致，只显示前 12 位
func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
