package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout 代码执行超时
var ErrTimeout = errors.New("code execution timed out")

type Config struct {
	// Backend: docker | local
	Backend string `mapstructure:"backend"`
	Image   string `mapstructure:"image"`
	// Python 为 local 后端使用的解释器
	Python   string        `mapstructure:"python"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MemoryMB int64         `mapstructure:"memory_mb"`
	Platform string        `mapstructure:"platform"`
	// ExportDir 为生成图片的落盘目录，PublicPrefix 为其对外访问路径
	ExportDir    string `mapstructure:"export_dir"`
	PublicPrefix string `mapstructure:"public_prefix"`
	WorkDir      string `mapstructure:"work_dir"`
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = "docker"
	}
	if c.Image == "" {
		c.Image = "python:3.12-slim"
	}
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = 512
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join("static", "exports")
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = "/static/exports"
	}
	return c
}

// Execution 是一次代码执行的结果。Images 为已移动到 ExportDir 的文件名。
type Execution struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Images   []string
}

func (e *Execution) Failed() bool {
	return e.ExitCode != 0
}

type Executor interface {
	Execute(ctx context.Context, code string) (*Execution, error)
}

// New 根据配置创建执行器
func New(cfg Config) (Executor, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	switch strings.ToLower(cfg.Backend) {
	case "docker":
		return &DockerExecutor{cfg: cfg}, nil
	case "local":
		return &LocalExecutor{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}

// PublicPath 返回导出文件的对外路径
func (c Config) PublicPath(name string) string {
	return strings.TrimRight(c.withDefaults().PublicPrefix, "/") + "/" + name
}

// 运行目录结构：<dir>/user_code.py、<dir>/main.py、<dir>/out/
func prepareWorkspace(baseDir, code string) (string, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return "", fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(baseDir, "paperagent-run-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "out"), 0o777); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "user_code.py"), []byte(code), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write code: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte(harness), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write harness: %w", err)
	}
	// 容器内可能以非 root 用户运行
	_ = os.Chmod(dir, 0o777)
	return dir, nil
}

// collectImages 将 outDir 下的 png 以 plot_<uuid>.png 命名移动到 exportDir
func collectImages(outDir, exportDir string) ([]string, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		name := "plot_" + uuid.NewString() + ".png"
		if err := moveFile(filepath.Join(outDir, e.Name()), filepath.Join(exportDir, name)); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// 跨设备时退化为复制
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
