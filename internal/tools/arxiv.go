package tools

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const DefaultArxivURL = "http://export.arxiv.org/api/query"

type ArxivConfig struct {
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
}

// ArxivTool 通过 arXiv Atom API 搜索外部论文
type ArxivTool struct {
	baseURL    string
	maxResults int
	client     *http.Client
}

func NewArxivTool(cfg ArxivConfig) *ArxivTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultArxivURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ArxivTool{baseURL: cfg.BaseURL, maxResults: cfg.MaxResults, client: cfg.HTTPClient}
}

func (t *ArxivTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameExternalPaperSearch,
		Desc: "Search for research papers on arXiv. Use this tool ONLY when you need external, state-of-the-art or recent papers that are NOT in the uploaded documents.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The search query",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Links     []atomLink `xml:"link"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

func (e atomEntry) pdfURL() string {
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return l.Href
		}
	}
	return strings.TrimSpace(e.ID)
}

func (t *ArxivTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	records, err := t.Search(ctx, args.Query)
	if err != nil {
		return "", err
	}
	return DocumentList(records).Encode(), nil
}

// Search 返回按相关度排序的前 maxResults 篇论文
func (t *ArxivTool) Search(ctx context.Context, query string) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(t.maxResults))
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arxiv returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode arxiv feed: %w", err)
	}

	records := make([]Record, 0, len(feed.Entries))
	for i, e := range feed.Entries {
		if i >= t.maxResults {
			break
		}
		title := collapseSpace(e.Title)
		summary := collapseSpace(e.Summary)
		link := e.pdfURL()
		records = append(records, Record{
			Content:   title + "\n" + summary,
			Source:    link,
			Title:     title,
			URL:       link,
			Published: strings.TrimSpace(e.Published),
		})
	}
	return records, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
