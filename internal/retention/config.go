package retention

import (
	"runtime"
	"time"
)

type ErrorHandler func(err error)

type Config struct {
	// Enabled 控制清理循环是否启动。
	Enabled bool `mapstructure:"enabled"`

	// Interval 为清理周期；启动时立即执行一次，之后每个周期执行一次。
	Interval time.Duration `mapstructure:"interval"`
	// Workers 为并发执行清理任务的 worker 数量。
	Workers int `mapstructure:"workers"`
	// BatchRows 为单次删除的最大行数（或文件数），避免长时间持有写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的休眠时间，0 表示不休眠。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	// KeepCheckpoints 之前未更新的会话检查点会被删除。
	KeepCheckpoints time.Duration `mapstructure:"keep_checkpoints"`
	// KeepAudit 之前开始的工具审计记录会被删除。
	KeepAudit time.Duration `mapstructure:"keep_audit"`
	// KeepArtifacts 之前生成的图表文件会从 ExportDir 删除。
	KeepArtifacts time.Duration `mapstructure:"keep_artifacts"`
	ExportDir     string        `mapstructure:"-"`

	// OnError 为异步错误回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Interval:        time.Hour,
		Workers:         max(2, runtime.NumCPU()),
		BatchRows:       500,
		IdleSleep:       50 * time.Millisecond,
		KeepCheckpoints: 7 * 24 * time.Hour,
		KeepAudit:       30 * 24 * time.Hour,
		KeepArtifacts:   7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchRows <= 0 {
		c.BatchRows = d.BatchRows
	}
	if c.KeepCheckpoints <= 0 {
		c.KeepCheckpoints = d.KeepCheckpoints
	}
	if c.KeepAudit <= 0 {
		c.KeepAudit = d.KeepAudit
	}
	if c.KeepArtifacts <= 0 {
		c.KeepArtifacts = d.KeepArtifacts
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
