package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/wwwzy/PaperAgent/internal/docker"
)

// DockerExecutor 在一次性容器中执行代码：无网络、限内存，工作目录通过 bind mount 共享
type DockerExecutor struct {
	cfg Config
}

func NewDockerExecutor(cfg Config) *DockerExecutor {
	return &DockerExecutor{cfg: cfg.withDefaults()}
}

func (e *DockerExecutor) Execute(ctx context.Context, code string) (*Execution, error) {
	if err := docker.EnsureImage(ctx, docker.PullImageOptions{Ref: e.cfg.Image, Platform: e.cfg.Platform}); err != nil {
		return nil, err
	}

	dir, err := prepareWorkspace(e.cfg.WorkDir, code)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	res, err := docker.RunOnce(ctx, docker.RunOptions{
		Image:          e.cfg.Image,
		Cmd:            []string{"python", "/work/main.py"},
		Env:            []string{"PAPERAGENT_OUT=/work/out", "MPLBACKEND=Agg"},
		WorkingDir:     "/work",
		Binds:          []string{absDir + ":/work"},
		Platform:       e.cfg.Platform,
		MemoryBytes:    e.cfg.MemoryMB * 1024 * 1024,
		DisableNetwork: true,
		Timeout:        e.cfg.Timeout,
	})
	if errors.Is(err, docker.ErrTimeout) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, err
	}

	images, err := collectImages(filepath.Join(dir, "out"), e.cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	return &Execution{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: int(res.ExitCode),
		Images:   images,
	}, nil
}
