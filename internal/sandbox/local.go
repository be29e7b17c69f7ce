package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalExecutor 直接在宿主机上用 python 子进程执行，只适合本地开发
type LocalExecutor struct {
	cfg Config
}

func NewLocalExecutor(cfg Config) *LocalExecutor {
	return &LocalExecutor{cfg: cfg.withDefaults()}
}

func (e *LocalExecutor) Execute(ctx context.Context, code string) (*Execution, error) {
	dir, err := prepareWorkspace(e.cfg.WorkDir, code)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Python, filepath.Join(dir, "main.py"))
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PAPERAGENT_OUT="+filepath.Join(dir, "out"), "MPLBACKEND=Agg")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() != nil {
		return nil, ErrTimeout
	}

	result := &Execution{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("run python: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	images, err := collectImages(filepath.Join(dir, "out"), e.cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	result.Images = images
	return result, nil
}
