package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/agent"
)

type fakeBackend struct {
	reqs []agent.Request
	err  error
}

func (f *fakeBackend) Run(_ context.Context, req agent.Request) (*agent.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	st := agent.NewState("s1", req.Question, req.PaperIDs, req.Mode)
	st.Messages = append(st.Messages, schema.AssistantMessage("answer to "+req.Question, nil))
	return &agent.Result{State: st, Outcome: agent.OutcomeSupported}, nil
}

func TestConsoleChat(t *testing.T) {
	backend := &fakeBackend{}
	var out bytes.Buffer
	u := &ConsoleChatUI{
		In:  strings.NewReader("What is BERT?\n/mode code\n/papers p1, p2\nplot it\nexit\n"),
		Out: &out,
	}
	require.NoError(t, u.Run(context.Background(), backend, ChatOptions{}))

	require.Len(t, backend.reqs, 2)
	assert.Equal(t, agent.ModeText, backend.reqs[0].Mode)
	assert.Empty(t, backend.reqs[0].PaperIDs)
	assert.Equal(t, agent.ModeCode, backend.reqs[1].Mode)
	assert.Equal(t, []string{"p1", "p2"}, backend.reqs[1].PaperIDs)

	text := out.String()
	assert.Contains(t, text, "助手: answer to What is BERT?")
	assert.Contains(t, text, "执行模式: code")
	assert.Contains(t, text, "已退出。")
}

func TestConsoleChatKeepsGoingAfterError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("ark unavailable")}
	var out bytes.Buffer
	u := &ConsoleChatUI{In: strings.NewReader("q1\nq2"), Out: &out}
	require.NoError(t, u.Run(context.Background(), backend, ChatOptions{}))

	assert.Len(t, backend.reqs, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "发生错误：ark unavailable"))
}

func TestConsoleChatRequiresIO(t *testing.T) {
	assert.Error(t, (&ConsoleChatUI{Out: &bytes.Buffer{}}).Run(context.Background(), &fakeBackend{}, ChatOptions{}))
	assert.Error(t, (&ConsoleChatUI{In: strings.NewReader("")}).Run(context.Background(), &fakeBackend{}, ChatOptions{}))
}

func TestSessionCommands(t *testing.T) {
	s := NewSession(ChatOptions{})
	_, ok := s.Command("hello")
	assert.False(t, ok)

	reply, ok := s.Command("/mode rust")
	assert.True(t, ok)
	assert.Contains(t, reply, "invalid execution mode")
	assert.Equal(t, agent.ModeText, s.Opts.Mode)

	s.Command("/mode python")
	assert.Equal(t, agent.ModeCode, s.Opts.Mode)

	s.Command("/papers a,b")
	reply, _ = s.Command("/papers")
	assert.Equal(t, "检索范围: 全部论文", reply)
	assert.Empty(t, s.Opts.PaperIDs)

	s.Command("/reasoning")
	assert.True(t, s.Opts.ShowReasoning)

	reply, _ = s.Command("/nope")
	assert.Contains(t, reply, "未知命令")
}

func TestFormatResponse(t *testing.T) {
	resp := agent.Response{
		Answer: "BERT is bidirectional.",
		Citations: []agent.Citation{
			{Paper: "p1", Page: 3, Section: "Methods", Confidence: 0.91},
		},
		Reasoning: &agent.Reasoning{Plan: []string{"retrieve", "answer"}, ToolCalls: []string{"retrieve"}, RetryCount: 1, Steps: 7},
		Outcome:   agent.OutcomeRetryExhausted,
	}
	got := FormatResponse(resp)
	assert.Contains(t, got, "1. p1 p.3 (Methods) confidence 0.91")
	assert.Contains(t, got, "- plan: retrieve → answer")
	assert.Contains(t, got, "- retries: 1, steps: 7")
	assert.Contains(t, got, "_outcome: retry_exhausted_")

	assert.Equal(t, "ok", FormatResponse(agent.Response{Answer: "ok", Outcome: agent.OutcomeSupported}))
}
