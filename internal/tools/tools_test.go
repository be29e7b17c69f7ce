package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/sandbox"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    Kind
		check   func(t *testing.T, r Result)
	}{
		{
			name:    "legacy artifact object",
			payload: `{"artifact": {"type":"image","path":"/static/p.png","name":"p.png"}, "text_summary":"done"}`,
			kind:    KindArtifactResult,
			check: func(t *testing.T, r Result) {
				require.NotNil(t, r.Artifact)
				assert.Equal(t, Artifact{Type: "image", Path: "/static/p.png", Name: "p.png"}, *r.Artifact)
				assert.Equal(t, "done", r.TextSummary)
			},
		},
		{
			name:    "legacy record array",
			payload: `[{"content":"a","source":"Page 1 - Section Abstract","page_number":1,"score":0.5},{"title":"x"}]`,
			kind:    KindDocumentList,
			check: func(t *testing.T, r Result) {
				require.Len(t, r.Documents, 2)
				assert.Equal(t, "a", r.Documents[0].Content)
				assert.Equal(t, 1, r.Documents[0].PageNumber)
				assert.Equal(t, `{"title":"x"}`, r.Documents[1].Content)
			},
		},
		{
			name:    "code output without artifact",
			payload: `{"text_summary":"4","artifact":null}`,
			kind:    KindPlainText,
		},
		{
			name:    "plain text",
			payload: "Web search failed.",
			kind:    KindPlainText,
			check: func(t *testing.T, r Result) {
				assert.Equal(t, "Web search failed.", r.Text)
			},
		},
		{
			name:    "tagged empty list",
			payload: DocumentList(nil).Encode(),
			kind:    KindDocumentList,
			check: func(t *testing.T, r Result) {
				assert.NotNil(t, r.Documents)
				assert.Empty(t, r.Documents)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Decode(tt.payload)
			assert.Equal(t, tt.kind, r.Kind)
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestResultContent(t *testing.T) {
	r := Decode(DocumentList([]Record{{Content: "one"}, {Content: "two"}}).Encode())
	assert.Equal(t, "one\n\ntwo", r.Content())

	a := ArtifactResult("plotted", &Artifact{Type: "image", Path: "/x.png", Name: "x.png"})
	assert.Equal(t, "plotted", Decode(a.Encode()).Content())
	assert.Equal(t, "hi", PlainText("hi").Content())
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceID(ctx))
	assert.Nil(t, PaperScope(ctx))

	ids := []string{"p1", "p2"}
	ctx = WithPaperScope(WithTraceID(ctx, "s-1"), ids)
	ids[0] = "changed"
	assert.Equal(t, "s-1", TraceID(ctx))
	assert.Equal(t, []string{"p1", "p2"}, PaperScope(ctx))
	assert.Equal(t, ctx, WithPaperScope(ctx, nil))
}

type fakeSearcher struct {
	mu      sync.Mutex
	hits    map[string][]vectorstore.Hit
	calls   []vectorstore.Filter
	queries []string
	err     error
}

func (f *fakeSearcher) Query(_ context.Context, text string, _ int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filter)
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	var out []vectorstore.Hit
	for _, h := range f.hits[filter.PaperID] {
		if filter.Section != "" && h.Section != filter.Section {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func hit(paper string, idx int, text, section string, sim float32) vectorstore.Hit {
	return vectorstore.Hit{
		Chunk: vectorstore.Chunk{
			ID:      vectorstore.ChunkID(paper, idx),
			PaperID: paper,
			Text:    text,
			Page:    idx + 1,
			Section: section,
			Index:   idx,
		},
		Similarity: sim,
	}
}

type fakeExpander struct {
	variants []string
	err      error
}

func (f fakeExpander) Expand(_ context.Context, query string, _ int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]string{query}, f.variants...), nil
}

func TestRetrieveExpandsDedupesAndReranks(t *testing.T) {
	s := &fakeSearcher{hits: map[string][]vectorstore.Hit{
		"": {
			hit("p1", 0, "transformer attention results", "Results", 0.9),
			hit("p1", 1, "unrelated text", "Body", 0.2),
		},
	}}
	rt := NewRetrieveTool(s, fakeExpander{variants: []string{"attention results", "Attention Results"}}, RetrieveConfig{QueryVariants: 3}, nil)

	out, err := rt.InvokableRun(context.Background(), `{"query":"attention results"}`)
	require.NoError(t, err)

	r := Decode(out)
	require.Equal(t, KindDocumentList, r.Kind)
	require.Len(t, r.Documents, 2)
	assert.Equal(t, "p1_0", r.Documents[0].ChunkID)
	assert.Equal(t, "Page 1 - Section Results", r.Documents[0].Source)
	assert.Equal(t, 1.0, r.Documents[0].Score)
	// 原始问题与大小写不同的重复变体只查询一次
	assert.Len(t, s.queries, 1)
}

func TestRetrieveRespectsPaperScope(t *testing.T) {
	s := &fakeSearcher{hits: map[string][]vectorstore.Hit{
		"p1": {hit("p1", 0, "alpha", "Body", 0.5)},
		"p2": {hit("p2", 0, "beta", "Body", 0.4)},
	}}
	rt := NewRetrieveTool(s, nil, RetrieveConfig{}, nil)

	ctx := WithPaperScope(context.Background(), []string{"p1", "p2"})
	records, err := rt.Retrieve(ctx, "alpha", "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.ElementsMatch(t, []vectorstore.Filter{{PaperID: "p1"}, {PaperID: "p2"}}, s.calls)

	s.calls = nil
	_, err = rt.Retrieve(ctx, "alpha", "p2")
	require.NoError(t, err)
	assert.Equal(t, []vectorstore.Filter{{PaperID: "p2"}}, s.calls)
}

func TestRetrieveEmptyAndExpansionFailure(t *testing.T) {
	s := &fakeSearcher{}
	rt := NewRetrieveTool(s, fakeExpander{err: errors.New("llm down")}, RetrieveConfig{QueryVariants: 3}, nil)
	out, err := rt.InvokableRun(context.Background(), `{"query":"nothing"}`)
	require.NoError(t, err)
	r := Decode(out)
	assert.Equal(t, KindDocumentList, r.Kind)
	assert.Empty(t, r.Documents)
	assert.Equal(t, []string{"nothing"}, s.queries)

	_, err = rt.InvokableRun(context.Background(), `{"query":"  "}`)
	assert.Error(t, err)
}

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models.  </summary>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = io.WriteString(w, atomFixture)
	}))
	defer srv.Close()

	at := NewArxivTool(ArxivConfig{BaseURL: srv.URL})
	out, err := at.InvokableRun(context.Background(), `{"query":"transformers"}`)
	require.NoError(t, err)
	assert.Equal(t, "all:transformers", gotQuery)

	r := Decode(out)
	require.Len(t, r.Documents, 1)
	d := r.Documents[0]
	assert.Equal(t, "Attention Is All You Need", d.Title)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", d.URL)
	assert.Equal(t, "2017-06-12T17:57:34Z", d.Published)
	assert.Equal(t, "Attention Is All You Need\nThe dominant sequence transduction models.", d.Content)
}

func TestArxivHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewArxivTool(ArxivConfig{BaseURL: srv.URL}).Search(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llm news", body["q"])
		_, _ = io.WriteString(w, `{"answerBox":{"answer":"42"},"organic":[{"snippet":"first"},{"snippet":"second"}]}`)
	}))
	defer srv.Close()

	wt := NewWebSearchTool(WebSearchConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := wt.InvokableRun(context.Background(), `{"query":"llm news"}`)
	require.NoError(t, err)
	r := Decode(out)
	assert.Equal(t, KindPlainText, r.Kind)
	assert.Equal(t, "42 first second", r.Text)
}

func TestWebSearchFailureIsText(t *testing.T) {
	wt := NewWebSearchTool(WebSearchConfig{})
	out, err := wt.InvokableRun(context.Background(), `{"query":"x"}`)
	require.NoError(t, err)
	r := Decode(out)
	assert.True(t, strings.HasPrefix(r.Text, "Web search failed. Did you add SERPER_API_KEY to .env? Error:"))
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, section, content string) (string, error) {
	return fmt.Sprintf("%s summary of %d chars", section, len(content)), nil
}

func TestSummarizeSection(t *testing.T) {
	s := &fakeSearcher{hits: map[string][]vectorstore.Hit{
		"p1": {
			hit("p1", 2, "second", "Methods", 0.1),
			hit("p1", 1, "first", "Methods", 0.9),
			hit("p1", 3, "other", "Results", 0.9),
		},
	}}
	st := NewSummarizeSectionTool(s, fakeSummarizer{})

	out, err := st.InvokableRun(context.Background(), `{"section_name":"methodology","paper_id":"p1"}`)
	require.NoError(t, err)
	r := Decode(out)
	require.Len(t, r.Documents, 1)
	d := r.Documents[0]
	assert.Equal(t, "Methods summary of 12 chars", d.Content)
	assert.Equal(t, "Methods", d.Source)
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, "summary_Methods", d.ChunkID)

	out, err = st.InvokableRun(context.Background(), `{"section_name":"Conclusion","paper_id":"p1"}`)
	require.NoError(t, err)
	assert.Equal(t, "No content found for section 'Conclusion'.", Decode(out).Text)

	_, err = st.InvokableRun(context.Background(), `{"section_name":"Appendix"}`)
	assert.Error(t, err)
}

type fakeExecutor struct {
	exec *sandbox.Execution
	err  error
}

func (f fakeExecutor) Execute(context.Context, string) (*sandbox.Execution, error) {
	return f.exec, f.err
}

func TestExecuteCode(t *testing.T) {
	tests := []struct {
		name     string
		exec     fakeExecutor
		kind     Kind
		contains string
	}{
		{"stdout", fakeExecutor{exec: &sandbox.Execution{Stdout: "100\n"}}, KindPlainText, "100"},
		{"no output", fakeExecutor{exec: &sandbox.Execution{}}, KindPlainText, "Code executed successfully (no output)."},
		{"python error", fakeExecutor{exec: &sandbox.Execution{ExitCode: 1, Stderr: "Traceback\nNameError: x"}}, KindPlainText, "Error executing code: NameError: x"},
		{"sandbox error", fakeExecutor{err: errors.New("docker unavailable")}, KindPlainText, "Error executing code: docker unavailable"},
		{"timeout", fakeExecutor{err: sandbox.ErrTimeout}, KindPlainText, "timed out"},
		{"plot", fakeExecutor{exec: &sandbox.Execution{Images: []string{"plot_1.png"}}}, KindArtifactResult, "/static/exports/plot_1.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewExecuteCodeTool(tt.exec, "").InvokableRun(context.Background(), `{"code":"print(1)"}`)
			require.NoError(t, err)
			r := Decode(out)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Contains(t, r.Content(), tt.contains)
			if tt.kind == KindArtifactResult {
				assert.Equal(t, &Artifact{Type: "image", Path: "/static/exports/plot_1.png", Name: "plot_1.png"}, r.Artifact)
			}
		})
	}
}

type stubTool struct {
	name string
	out  string
	err  error
	args string
}

func (s *stubTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: s.name, Desc: s.name}, nil
}

func (s *stubTool) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	s.args = args
	return s.out, s.err
}

type observed struct {
	tool, status string
}

type recordingObserver struct{ calls []observed }

func (o *recordingObserver) ObserveToolCall(tool, status string, _ time.Duration) {
	o.calls = append(o.calls, observed{tool, status})
}

func TestAuditedToolRecordsAndConvertsErrors(t *testing.T) {
	ctx := WithTraceID(context.Background(), "session-1")
	store, err := storage.Open(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	obs := &recordingObserver{}
	ok := &stubTool{name: "retrieve", out: "[]"}
	bad := &stubTool{name: "web_search", err: errors.New("boom")}

	out, err := Wrap(ok, AuditOptions{Store: store, Observer: obs}).InvokableRun(ctx, "{")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "{}", ok.args)

	out, err = Wrap(bad, AuditOptions{Store: store, Observer: obs}).InvokableRun(ctx, `{"query":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, "Tool web_search failed: boom", Decode(out).Text)

	recs, err := store.QueryAuditRecords(ctx, storage.AuditQuery{TraceID: "session-1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	statuses := map[string]string{}
	for _, r := range recs {
		statuses[r.Action] = r.Status
	}
	assert.Equal(t, map[string]string{"retrieve": "success", "web_search": "failed"}, statuses)
	assert.Equal(t, []observed{{"retrieve", "success"}, {"web_search", "failed"}}, obs.calls)
}

func TestAuditedToolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Wrap(&stubTool{name: "retrieve", out: "[]"}, AuditOptions{}).InvokableRun(ctx, "{}")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetExcludes(t *testing.T) {
	ctx := context.Background()
	set, err := NewSetFrom(ctx, AuditOptions{},
		&stubTool{name: NameRetrieve}, &stubTool{name: NameExecuteCode})
	require.NoError(t, err)

	assert.Len(t, set.Tools(), 2)
	infos, err := set.Infos(ctx, NameExecuteCode)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, NameRetrieve, infos[0].Name)
	assert.Equal(t, []string{NameRetrieve, NameExecuteCode}, set.Names())
}
