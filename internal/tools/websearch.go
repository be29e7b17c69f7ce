package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const DefaultSerperURL = "https://google.serper.dev/search"

type WebSearchConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// WebSearchTool 通过 Serper 调用 Google 搜索。失败时返回说明文字而不是错误。
type WebSearchTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSerperURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebSearchTool{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, client: cfg.HTTPClient}
}

func (t *WebSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameWebSearch,
		Desc: "Search the web using Google Search. Use it for recent news or events, real-world impact or applications of research, and information NOT found in the uploaded papers or arXiv.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The search query",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

type serperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Title   string `json:"title"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (t *WebSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	text, err := t.Search(ctx, args.Query)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text = fmt.Sprintf("Web search failed. Did you add SERPER_API_KEY to .env? Error: %v", err)
	}
	return PlainText(text).Encode(), nil
}

func (t *WebSearchTool) Search(ctx context.Context, query string) (string, error) {
	if t.apiKey == "" {
		return "", errors.New("SERPER_API_KEY is not set")
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is required")
	}

	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-KEY", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("serper returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode serper response: %w", err)
	}

	var parts []string
	if out.AnswerBox != nil {
		switch {
		case out.AnswerBox.Answer != "":
			parts = append(parts, out.AnswerBox.Answer)
		case out.AnswerBox.Snippet != "":
			parts = append(parts, out.AnswerBox.Snippet)
		}
	}
	if out.KnowledgeGraph != nil && out.KnowledgeGraph.Description != "" {
		parts = append(parts, out.KnowledgeGraph.Title+": "+out.KnowledgeGraph.Description)
	}
	for _, o := range out.Organic {
		if o.Snippet != "" {
			parts = append(parts, o.Snippet)
		}
	}
	if len(parts) == 0 {
		return "No good Google Search Result was found", nil
	}
	return strings.Join(parts, " "), nil
}
