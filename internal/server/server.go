package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/metrics"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadMB    int           `mapstructure:"max_upload_mb"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8000",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		RequestTimeout: 5 * time.Minute,
		MaxUploadMB:    50,
	}
}

// QueryRunner 由 agent.Runner 实现
type QueryRunner interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
	Load(ctx context.Context, sessionID string) (*agent.AgentState, error)
}

// PaperService 由 ingest.Service 实现
type PaperService interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*storage.Paper, error)
	Get(ctx context.Context, id string) (*storage.Paper, error)
	List(ctx context.Context) ([]storage.Paper, error)
	Chunks(ctx context.Context, id string) ([]vectorstore.Chunk, error)
	Delete(ctx context.Context, id string) error
}

type Deps struct {
	Runner  QueryRunner
	Papers  PaperService
	Metrics *metrics.Metrics
	// ExportDir 下的文件通过 PublicPrefix 对外提供
	ExportDir    string
	PublicPrefix string
	Logger       *slog.Logger
}

type Server struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	logger *slog.Logger
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Runner == nil || deps.Papers == nil {
		return nil, errors.New("runner and paper service are required")
	}
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = def.MaxUploadMB
	}
	if deps.PublicPrefix == "" {
		deps.PublicPrefix = "/static/exports"
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.WithComponent(deps.Logger, "server"),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler 返回完整的路由，便于 httptest 直接调用
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware())
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	r.MaxMultipartMemory = int64(s.cfg.MaxUploadMB) << 20

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "PaperAgent API", "version": "1.0.0"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.deps.ExportDir != "" {
		r.Static(s.deps.PublicPrefix, s.deps.ExportDir)
	}

	chat := newChatHandler(s.deps.Runner, s.deps.Papers, s.cfg.RequestTimeout, s.logger)
	papers := newPaperHandler(s.deps.Papers, s.cfg.MaxUploadMB, s.logger)

	api := r.Group("/api")
	{
		api.POST("/chat/query", chat.Query)
		api.GET("/sessions/:id", chat.Session)

		api.POST("/ingest/upload", papers.Upload)
		api.DELETE("/ingest/paper/:id", papers.Delete)

		api.GET("/papers/list", papers.List)
		api.GET("/papers/:id/download", papers.Download)
		api.GET("/papers/:id/chunks", papers.Chunks)

		api.GET("/graph/:paper_id", papers.Graph)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Run 阻塞直到 ctx 取消，然后在超时内优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
