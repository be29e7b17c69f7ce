package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/retention"
)

func TestLoad_Defaults(t *testing.T) {
	// 设置必填环境变量，绕过 Validate 检查
	t.Setenv("ARK_API_KEY", "dummy-key")
	t.Setenv("ARK_MODEL_ID", "dummy-model")

	// 测试加载默认值（不提供配置文件）
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "paperagent.db", cfg.Storage.Path)
	assert.Equal(t, "research_papers", cfg.Vector.Collection)
	assert.Equal(t, agent.DefaultConfig(), cfg.Agent)
	assert.Equal(t, 5, cfg.Agent.MaxRetries)
	assert.Equal(t, agent.ModeText, cfg.Agent.ExecutionMode)
	assert.Equal(t, 20, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.TopKReranked)
	assert.Equal(t, 400, cfg.Ingest.ChunkSize)
	assert.Equal(t, 50, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, "static/exports", cfg.Sandbox.ExportDir)
	assert.Equal(t, "static/exports", cfg.Retention.ExportDir)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Backend)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, retention.DefaultConfig().KeepAudit, cfg.Retention.KeepAudit)
}

func TestLoad_ConfigFile(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
log:
  level: "debug"
ark:
  api_key: "file-key"
  model_id: "file-model"
  grader_model_id: "grader-model"
storage:
  path: "test.db"
  busy_timeout: "10s"
agent:
  max_retries: 2
  execution_mode: "code"
  on_retry_exhausted: "accept"
  code_fallback: false
retention:
  enabled: false
  keep_audit: "48h"
server:
  allowed_origins: ["https://papers.example.com"]
`)
	require.NoError(t, os.WriteFile(configFile, content, 0644))

	// 从文件加载
	cfg, err := Load(configFile)
	require.NoError(t, err)

	// 验证覆盖值
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, 2, cfg.Agent.MaxRetries)
	assert.Equal(t, agent.ModeCode, cfg.Agent.ExecutionMode)
	assert.Equal(t, agent.ExhaustAccept, cfg.Agent.OnRetryExhausted)
	assert.False(t, cfg.Agent.CodeFallback)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Retention.KeepAudit)
	assert.Equal(t, []string{"https://papers.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "grader-model", cfg.GraderArk().ModelID)
	assert.Equal(t, "file-model", cfg.Ark.ModelID)

	// 验证未覆盖的字段保持默认值
	assert.Equal(t, 40, cfg.Agent.StepBudget)
	assert.Equal(t, retention.DefaultConfig().KeepCheckpoints, cfg.Retention.KeepCheckpoints)
}

func TestLoad_EnvOverride(t *testing.T) {
	// 设置环境变量
	t.Setenv("PAPERAGENT_LOG_LEVEL", "warn")
	t.Setenv("PAPERAGENT_STORAGE_PATH", "env.db")
	t.Setenv("PAPERAGENT_AGENT_STEP_BUDGET", "12")
	t.Setenv("SERPER_API_KEY", "serper-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("REDIS_ADDR", "redis:6380")
	// 必须设置必填项，否则 Validate 会失败
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")

	// 加载配置（无文件）
	cfg, err := Load("")
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 12, cfg.Agent.StepBudget)
	assert.Equal(t, "serper-key", cfg.Search.SerperAPIKey)
	assert.Equal(t, "openai-key", cfg.Embedding.APIKey)
	assert.Equal(t, "redis:6380", cfg.Checkpoint.RedisAddr)
	assert.Equal(t, "test-key", cfg.Ark.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ARK_API_KEY=dotenv-key\nARK_MODEL_ID=dotenv-model\n"), 0644))
	t.Chdir(dir)
	// godotenv 不覆盖已存在的变量，这里先清空
	unsetEnv(t, "ARK_API_KEY")
	unsetEnv(t, "ARK_MODEL_ID")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Ark.APIKey)
	assert.Equal(t, "dotenv-model", cfg.Ark.ModelID)
}

func TestLoad_ValidateArk(t *testing.T) {
	// 确保没有环境变量干扰
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "ark.api_key is required")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.Ark.APIKey = "k"
		cfg.Ark.ModelID = "m"
		return cfg
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"bad mode":         func(c *Config) { c.Agent.ExecutionMode = "shell" },
		"bad policy":       func(c *Config) { c.Agent.OnRetryExhausted = "sometimes" },
		"zero budget":      func(c *Config) { c.Agent.StepBudget = 0 },
		"bad checkpoint":   func(c *Config) { c.Checkpoint.Backend = "etcd" },
		"bad sandbox":      func(c *Config) { c.Sandbox.Backend = "wasm" },
		"bad embedding":    func(c *Config) { c.Embedding.Provider = "cohere" },
		"overlap too big":  func(c *Config) { c.Ingest.ChunkOverlap = 400 },
		"no reranked hits": func(c *Config) { c.Retrieval.TopKReranked = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

// unsetEnv 清除变量并在测试结束后恢复
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
