package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
	"github.com/wwwzy/PaperAgent/internal/ingest"
	"github.com/wwwzy/PaperAgent/internal/llm"
	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/retention"
	"github.com/wwwzy/PaperAgent/internal/sandbox"
	"github.com/wwwzy/PaperAgent/internal/server"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/tools"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid config")

type SearchConfig struct {
	SerperAPIKey  string `mapstructure:"serper_api_key"`
	SerperBaseURL string `mapstructure:"serper_base_url"`
	ArxivBaseURL  string `mapstructure:"arxiv_base_url"`
	MaxResults    int    `mapstructure:"max_results"`
}

type Config struct {
	Log        logging.Config              `mapstructure:"log"`
	Ark        llm.ArkConfig               `mapstructure:"ark"`
	Embedding  vectorstore.EmbeddingConfig `mapstructure:"embedding"`
	Storage    storage.Config              `mapstructure:"storage"`
	Vector     vectorstore.Config          `mapstructure:"vector"`
	Agent      agent.Config                `mapstructure:"agent"`
	Retrieval  tools.RetrieveConfig        `mapstructure:"retrieval"`
	Ingest     ingest.Config               `mapstructure:"ingest"`
	Sandbox    sandbox.Config              `mapstructure:"sandbox"`
	Search     SearchConfig                `mapstructure:"search"`
	Checkpoint checkpoint.Config           `mapstructure:"checkpoint"`
	Retention  retention.Config            `mapstructure:"retention"`
	Server     server.Config               `mapstructure:"server"`
}

// Load 读取配置，优先级：环境变量 > 配置文件 > 默认值。
// 当前目录下的 .env 会先被加载到环境变量中（已存在的变量不会被覆盖）。
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.paperagent")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAPERAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper 只反序列化它“知道”的 key，所以所有字段都要有默认值
	setDefaults(v)
	bindEnv(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.Retention.ExportDir = cfg.Sandbox.ExportDir

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// Ark 配置验证：必须存在
	if c.Ark.APIKey == "" {
		return fmt.Errorf("%w: ark.api_key is required (or set ARK_API_KEY env var)", ErrInvalid)
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("%w: ark.model_id is required (or set ARK_MODEL_ID env var)", ErrInvalid)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopKReranked <= 0 || c.Retrieval.QueryVariants < 0 {
		return fmt.Errorf("%w: retrieval.top_k and retrieval.top_k_reranked must be positive", ErrInvalid)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash":
	default:
		return fmt.Errorf("%w: embedding.provider must be openai, ollama or hash, got %q", ErrInvalid, c.Embedding.Provider)
	}
	switch c.Checkpoint.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("%w: checkpoint.backend must be sqlite, redis or memory, got %q", ErrInvalid, c.Checkpoint.Backend)
	}
	switch c.Sandbox.Backend {
	case "docker", "local":
	default:
		return fmt.Errorf("%w: sandbox.backend must be docker or local, got %q", ErrInvalid, c.Sandbox.Backend)
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: ingest.chunk_overlap must be smaller than ingest.chunk_size", ErrInvalid)
	}
	return nil
}

// GraderArk 返回评分器使用的模型配置，未单独配置时与主模型相同
func (c *Config) GraderArk() llm.ArkConfig {
	g := c.Ark
	if g.GraderModelID != "" {
		g.ModelID = g.GraderModelID
	}
	return g
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("ark.api_key", "PAPERAGENT_ARK_API_KEY", "ARK_API_KEY")
	_ = v.BindEnv("ark.model_id", "PAPERAGENT_ARK_MODEL_ID", "ARK_MODEL_ID")
	_ = v.BindEnv("ark.base_url", "PAPERAGENT_ARK_BASE_URL", "ARK_BASE_URL")
	_ = v.BindEnv("embedding.api_key", "PAPERAGENT_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("search.serper_api_key", "PAPERAGENT_SEARCH_SERPER_API_KEY", "SERPER_API_KEY")
	_ = v.BindEnv("checkpoint.redis_addr", "PAPERAGENT_CHECKPOINT_REDIS_ADDR", "REDIS_ADDR")
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// -------------------------------------------------------------------------
	// Log
	// -------------------------------------------------------------------------
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)

	// -------------------------------------------------------------------------
	// Ark AI Defaults (AI 模型默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", d.Ark.BaseURL)
	v.SetDefault("ark.grader_model_id", "")
	v.SetDefault("ark.temperature", d.Ark.Temperature)

	// -------------------------------------------------------------------------
	// Embedding / Vector Store (向量检索)
	// -------------------------------------------------------------------------
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	v.SetDefault("vector.path", d.Vector.Path)
	v.SetDefault("vector.collection", d.Vector.Collection)
	v.SetDefault("vector.compress", d.Vector.Compress)

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)

	// -------------------------------------------------------------------------
	// Agent / Retrieval (编排与检索)
	// -------------------------------------------------------------------------
	v.SetDefault("agent.max_retries", d.Agent.MaxRetries)
	v.SetDefault("agent.step_budget", d.Agent.StepBudget)
	v.SetDefault("agent.execution_mode", string(d.Agent.ExecutionMode))
	v.SetDefault("agent.on_retry_exhausted", string(d.Agent.OnRetryExhausted))
	v.SetDefault("agent.code_fallback", d.Agent.CodeFallback)
	v.SetDefault("agent.relevance_grading", string(d.Agent.RelevanceGrading))
	v.SetDefault("agent.tool_timeout", d.Agent.ToolTimeout)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.top_k_reranked", d.Retrieval.TopKReranked)
	v.SetDefault("retrieval.query_variants", d.Retrieval.QueryVariants)

	// -------------------------------------------------------------------------
	// Ingest (论文导入)
	// -------------------------------------------------------------------------
	v.SetDefault("ingest.upload_dir", d.Ingest.UploadDir)
	v.SetDefault("ingest.chunk_size", d.Ingest.ChunkSize)
	v.SetDefault("ingest.chunk_overlap", d.Ingest.ChunkOverlap)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.token_model", d.Ingest.TokenModel)

	// -------------------------------------------------------------------------
	// Sandbox (代码执行)
	// -------------------------------------------------------------------------
	v.SetDefault("sandbox.backend", d.Sandbox.Backend)
	v.SetDefault("sandbox.image", d.Sandbox.Image)
	v.SetDefault("sandbox.python", d.Sandbox.Python)
	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout)
	v.SetDefault("sandbox.memory_mb", d.Sandbox.MemoryMB)
	v.SetDefault("sandbox.platform", d.Sandbox.Platform)
	v.SetDefault("sandbox.export_dir", d.Sandbox.ExportDir)
	v.SetDefault("sandbox.public_prefix", d.Sandbox.PublicPrefix)
	v.SetDefault("sandbox.work_dir", d.Sandbox.WorkDir)

	// -------------------------------------------------------------------------
	// External Search (外部搜索)
	// -------------------------------------------------------------------------
	v.SetDefault("search.serper_api_key", "")
	v.SetDefault("search.serper_base_url", d.Search.SerperBaseURL)
	v.SetDefault("search.arxiv_base_url", d.Search.ArxivBaseURL)
	v.SetDefault("search.max_results", d.Search.MaxResults)

	// -------------------------------------------------------------------------
	// Checkpoint (断点续跑)
	// -------------------------------------------------------------------------
	v.SetDefault("checkpoint.backend", d.Checkpoint.Backend)
	v.SetDefault("checkpoint.redis_addr", d.Checkpoint.RedisAddr)
	v.SetDefault("checkpoint.redis_password", "")
	v.SetDefault("checkpoint.redis_db", d.Checkpoint.RedisDB)
	v.SetDefault("checkpoint.redis_prefix", d.Checkpoint.RedisPrefix)
	v.SetDefault("checkpoint.ttl", d.Checkpoint.TTL)

	// -------------------------------------------------------------------------
	// Retention Defaults (数据清理默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.workers", d.Retention.Workers)
	v.SetDefault("retention.batch_rows", d.Retention.BatchRows)
	v.SetDefault("retention.idle_sleep", d.Retention.IdleSleep)
	v.SetDefault("retention.keep_checkpoints", d.Retention.KeepCheckpoints)
	v.SetDefault("retention.keep_audit", d.Retention.KeepAudit)
	v.SetDefault("retention.keep_artifacts", d.Retention.KeepArtifacts)

	// -------------------------------------------------------------------------
	// HTTP Server
	// -------------------------------------------------------------------------
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
}

func DefaultConfig() Config {
	return Config{
		Log: logging.Config{Level: "info", Format: "text"},
		Ark: llm.ArkConfig{
			BaseURL:     "https://ark.cn-beijing.volces.com/api/v3",
			Temperature: 0.2,
		},
		Embedding: vectorstore.EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
		},
		Storage: storage.Config{
			Path:        "paperagent.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		Vector: vectorstore.Config{
			Path:       "data/chroma",
			Collection: "research_papers",
		},
		Agent:     agent.DefaultConfig(),
		Retrieval: tools.DefaultRetrieveConfig(),
		Ingest: ingest.Config{
			UploadDir:    "data/uploads",
			ChunkSize:    400,
			ChunkOverlap: 50,
			Workers:      4,
			TokenModel:   "gpt-4o-mini",
		},
		Sandbox: sandbox.Config{
			Backend:      "docker",
			Image:        "python:3.12-slim",
			Python:       "python3",
			Timeout:      60 * time.Second,
			MemoryMB:     512,
			ExportDir:    "static/exports",
			PublicPrefix: "/static/exports",
		},
		Search: SearchConfig{
			SerperBaseURL: tools.DefaultSerperURL,
			ArxivBaseURL:  tools.DefaultArxivURL,
			MaxResults:    3,
		},
		Checkpoint: checkpoint.Config{
			Backend:     "sqlite",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "paperagent:checkpoint:",
			TTL:         7 * 24 * time.Hour,
		},
		Retention: retention.DefaultConfig(),
		Server:    server.DefaultConfig(),
	}
}
