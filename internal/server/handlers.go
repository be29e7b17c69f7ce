package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
	"github.com/wwwzy/PaperAgent/internal/concepts"
	"github.com/wwwzy/PaperAgent/internal/ingest"
	"github.com/wwwzy/PaperAgent/internal/storage"
)

type queryRequest struct {
	Query            string   `json:"query" binding:"required"`
	PaperIDs         []string `json:"paper_ids"`
	IncludeReasoning bool     `json:"include_reasoning"`
	ExecutionMode    string   `json:"execution_mode"`
	SessionID        string   `json:"session_id"`
}

// sessionSummary 是检查点的摘要视图
type sessionSummary struct {
	SessionID  string           `json:"session_id"`
	Question   string           `json:"question"`
	Mode       agent.Mode       `json:"execution_mode"`
	LastNode   string           `json:"last_node"`
	Steps      int              `json:"steps"`
	RetryCount int              `json:"retry_count"`
	Plan       []string         `json:"plan,omitempty"`
	Outcome    agent.Outcome    `json:"outcome,omitempty"`
	Finished   bool             `json:"finished"`
	Answer     string           `json:"answer,omitempty"`
	Artifacts  []agent.Artifact `json:"artifacts,omitempty"`
}

type paperInfo struct {
	PaperID     string    `json:"paper_id"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title,omitempty"`
	Pages       int       `json:"total_pages"`
	ChunksCount int       `json:"chunks_count"`
	Tokens      int       `json:"tokens"`
	Status      string    `json:"status"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type chatHandler struct {
	runner  QueryRunner
	papers  PaperService
	timeout time.Duration
	logger  *slog.Logger
}

func newChatHandler(runner QueryRunner, papers PaperService, timeout time.Duration, logger *slog.Logger) *chatHandler {
	return &chatHandler{runner: runner, papers: papers, timeout: timeout, logger: logger}
}

// Query POST /api/chat/query
func (h *chatHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	// 未指定时留空，由 Runner 使用配置的默认模式
	var mode agent.Mode
	if req.ExecutionMode != "" {
		m, err := agent.ParseMode(req.ExecutionMode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		mode = m
	}
	for _, id := range req.PaperIDs {
		if _, err := h.papers.Get(c.Request.Context(), id); err != nil {
			writeLookupError(c, "paper "+id, err)
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.runner.Run(ctx, agent.Request{
		SessionID: req.SessionID,
		Question:  req.Query,
		PaperIDs:  req.PaperIDs,
		Mode:      mode,
	})
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrEmptyQuestion), errors.Is(err, agent.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"detail":     "Query timed out",
			"session_id": req.SessionID,
		})
		return
	default:
		h.logger.Error("query failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Query failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, agent.BuildResponse(res, req.IncludeReasoning))
}

// Session GET /api/sessions/:id
func (h *chatHandler) Session(c *gin.Context) {
	id := c.Param("id")
	st, err := h.runner.Load(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, "session "+id, err)
		return
	}
	c.JSON(http.StatusOK, sessionSummary{
		SessionID:  st.SessionID,
		Question:   st.Question,
		Mode:       st.Mode,
		LastNode:   st.LastNode,
		Steps:      st.Steps,
		RetryCount: st.RetryCount,
		Plan:       st.Plan,
		Outcome:    st.Outcome,
		Finished:   st.Finished(),
		Answer:     st.LastAnswer(),
		Artifacts:  st.Artifacts,
	})
}

type paperHandler struct {
	papers      PaperService
	maxUploadMB int
	logger      *slog.Logger
}

func newPaperHandler(papers PaperService, maxUploadMB int, logger *slog.Logger) *paperHandler {
	return &paperHandler{papers: papers, maxUploadMB: maxUploadMB, logger: logger}
}

// Upload POST /api/ingest/upload
func (h *paperHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
		return
	}
	if fh.Size > int64(h.maxUploadMB)<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": fmt.Sprintf("file exceeds %d MB", h.maxUploadMB)})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	defer f.Close()

	paper, err := h.papers.Ingest(c.Request.Context(), fh.Filename, f)
	if errors.Is(err, ingest.ErrUnsupportedFile) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Only PDF files are allowed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Processing failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paper_id":     paper.ID,
		"filename":     paper.Filename,
		"total_pages":  paper.Pages,
		"total_chunks": paper.Chunks,
		"status":       "success",
	})
}

// Delete DELETE /api/ingest/paper/:id
func (h *paperHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.papers.Delete(c.Request.Context(), id); err != nil {
		writeLookupError(c, "paper "+id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "paper_id": id})
}

// List GET /api/papers/list
func (h *paperHandler) List(c *gin.Context) {
	papers, err := h.papers.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Failed to list papers: %v", err)})
		return
	}
	out := make([]paperInfo, 0, len(papers))
	for _, p := range papers {
		out = append(out, paperInfo{
			PaperID:     p.ID,
			Filename:    p.Filename,
			Title:       p.Title,
			Pages:       p.Pages,
			ChunksCount: p.Chunks,
			Tokens:      p.Tokens,
			Status:      p.Status,
			UploadedAt:  p.UploadedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Download GET /api/papers/:id/download
func (h *paperHandler) Download(c *gin.Context) {
	id := c.Param("id")
	paper, err := h.papers.Get(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, "paper "+id, err)
		return
	}
	if _, err := os.Stat(paper.Path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Paper not found"})
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(paper.Path, paper.Filename)
}

// Chunks GET /api/papers/:id/chunks
func (h *paperHandler) Chunks(c *gin.Context) {
	id := c.Param("id")
	chunks, err := h.papers.Chunks(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, "paper "+id, err)
		return
	}
	c.JSON(http.StatusOK, chunks)
}

// Graph GET /api/graph/:paper_id
func (h *paperHandler) Graph(c *gin.Context) {
	id := c.Param("paper_id")
	chunks, err := h.papers.Chunks(c.Request.Context(), id)
	if err != nil {
		writeLookupError(c, "paper "+id, err)
		return
	}
	if len(chunks) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Paper not found"})
		return
	}
	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	g := concepts.BuildGraph(texts, concepts.DefaultGraphConcepts)
	c.JSON(http.StatusOK, gin.H{
		"nodes":    g.Nodes,
		"edges":    g.Edges,
		"paper_id": id,
	})
}

// writeLookupError 不存在映射为 404，其余为 500
func writeLookupError(c *gin.Context, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, checkpoint.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}
