package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/checkpoint"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

// responder 根据调用序号和输入给出模型回复，boundTools 是本次调用绑定的工具名
type responder func(call int, input []*schema.Message, boundTools []string) (*schema.Message, error)

type fakeModel struct {
	mu      sync.Mutex
	respond responder
	calls   int
	inputs  [][]*schema.Message
	bound   [][]string
}

type boundModel struct {
	m     *fakeModel
	names []string
}

func (m *fakeModel) generate(input []*schema.Message, names []string) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.calls
	m.calls++
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	m.bound = append(m.bound, names)
	return m.respond(call, input, names)
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return m.generate(input, nil)
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *fakeModel) WithTools(infos []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return &boundModel{m: m, names: names}, nil
}

func (b *boundModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return b.m.generate(input, b.names)
}

func (b *boundModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := b.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (b *boundModel) WithTools(infos []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return b.m.WithTools(infos)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeGrader 依次返回 verdicts，用完后返回 fallback
type fakeGrader struct {
	mu       sync.Mutex
	verdicts []bool
	fallback bool
	err      error
	targets  []string
	contexts []string
}

func (g *fakeGrader) Grade(_ context.Context, contextText, target string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contexts = append(g.contexts, contextText)
	g.targets = append(g.targets, target)
	if g.err != nil {
		return false, g.err
	}
	if len(g.verdicts) == 0 {
		return g.fallback, nil
	}
	v := g.verdicts[0]
	g.verdicts = g.verdicts[1:]
	return v, nil
}

func (g *fakeGrader) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.targets)
}

type fakePlanner struct {
	steps      []string
	err        error
	objectives []string
}

func (p *fakePlanner) Plan(_ context.Context, objective string) ([]string, error) {
	p.objectives = append(p.objectives, objective)
	return p.steps, p.err
}

type fakeRewriter struct {
	questions []string
}

func (r *fakeRewriter) Rewrite(_ context.Context, question string) (string, error) {
	r.questions = append(r.questions, question)
	return "rewritten: " + question, nil
}

type fakeTool struct {
	mu    sync.Mutex
	name  string
	out   func(args string) (string, error)
	args  []string
	scope [][]string
}

func (f *fakeTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: f.name, Desc: "fake " + f.name}, nil
}

func (f *fakeTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	f.mu.Lock()
	f.args = append(f.args, args)
	f.scope = append(f.scope, tools.PaperScope(ctx))
	f.mu.Unlock()
	return f.out(args)
}

func (f *fakeTool) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.args)
}

// recordingStore 记录每一次检查点写入
type recordingStore struct {
	*checkpoint.MemoryStore
	mu    sync.Mutex
	saved []AgentState
}

func (s *recordingStore) Save(ctx context.Context, snap checkpoint.Snapshot) error {
	var st AgentState
	if err := json.Unmarshal(snap.State, &st); err == nil {
		s.mu.Lock()
		s.saved = append(s.saved, st)
		s.mu.Unlock()
	}
	return s.MemoryStore.Save(ctx, snap)
}

func (s *recordingStore) history() []AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AgentState(nil), s.saved...)
}

type harness struct {
	model         *fakeModel
	relevance     *fakeGrader
	hallucination *fakeGrader
	adequacy      *fakeGrader
	planner       *fakePlanner
	rewriter      *fakeRewriter
	retrieve      *fakeTool
	code          *fakeTool
	store         *recordingStore
	runner        *Runner
}

func retrievalPayload(records ...tools.Record) string {
	return tools.DocumentList(records).Encode()
}

var bertRecord = tools.Record{
	Content:    "BERT is pre-trained with a masked language modeling objective.",
	Source:     "Page 3 - Section Methods",
	PageNumber: 3,
	Section:    "Methods",
	PaperID:    "p1",
	ChunkID:    "p1_12",
	Score:      0.914,
}

const plotPath = "/static/exports/plot_1.png"

func plotPayload() string {
	return tools.ArtifactResult("Code executed successfully (no output).\n[Plot generated and saved to "+plotPath+"]",
		&tools.Artifact{Type: "image", Path: plotPath, Name: "plot_1.png"}).Encode()
}

// newHarness 默认：所有评分通过，检索返回一条相关片段，执行代码生成一张图
func newHarness(t *testing.T, cfg Config, respond responder) *harness {
	t.Helper()
	h := &harness{
		model:         &fakeModel{respond: respond},
		relevance:     &fakeGrader{fallback: true},
		hallucination: &fakeGrader{fallback: true},
		adequacy:      &fakeGrader{fallback: true},
		planner:       &fakePlanner{steps: []string{"Retrieve relevant passages", "Answer with citations"}},
		rewriter:      &fakeRewriter{},
		retrieve: &fakeTool{name: tools.NameRetrieve, out: func(string) (string, error) {
			return retrievalPayload(bertRecord), nil
		}},
		code: &fakeTool{name: tools.NameExecuteCode, out: func(string) (string, error) {
			return plotPayload(), nil
		}},
		store: &recordingStore{MemoryStore: checkpoint.NewMemoryStore()},
	}
	set, err := tools.NewSetFrom(context.Background(), tools.AuditOptions{Logger: discardLogger()}, h.retrieve, h.code)
	require.NoError(t, err)

	comps := Components{
		ChatModel:     h.model,
		Relevance:     h.relevance,
		Hallucination: h.hallucination,
		Adequacy:      h.adequacy,
		Planner:       h.planner,
		Rewriter:      h.rewriter,
		Tools:         set,
	}
	h.runner, err = NewRunner(context.Background(), comps, cfg, h.store, WithLogger(discardLogger()))
	require.NoError(t, err)
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func answer(text string) *schema.Message {
	return schema.AssistantMessage(text, nil)
}

func callTool(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

// script 按顺序返回固定回复，超出后报错
func script(msgs ...*schema.Message) responder {
	return func(call int, _ []*schema.Message, _ []string) (*schema.Message, error) {
		if call >= len(msgs) {
			return nil, errors.New("script exhausted")
		}
		return msgs[call], nil
	}
}

func always(msg *schema.Message) responder {
	return func(int, []*schema.Message, []string) (*schema.Message, error) {
		return msg, nil
	}
}

func systemMessages(msgs []*schema.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == schema.System {
			n++
		}
	}
	return n
}

func roles(msgs []*schema.Message) []schema.RoleType {
	out := make([]schema.RoleType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}
