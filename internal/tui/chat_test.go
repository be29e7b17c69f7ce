package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/agent"
	"github.com/wwwzy/PaperAgent/internal/ui"
)

type nopBackend struct{}

func (nopBackend) Run(context.Context, agent.Request) (*agent.Result, error) {
	return nil, errors.New("not used")
}

func typeLine(t *testing.T, m chatModel, text string) (chatModel, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(chatModel), cmd
}

func TestSlashCommandsStayLocal(t *testing.T) {
	m := newChatModel(context.Background(), nopBackend{}, ui.ChatOptions{})
	m, _ = typeLine(t, m, "/mode code")

	assert.False(t, m.thinking)
	assert.Equal(t, agent.ModeCode, m.session.Opts.Mode)
	require.Len(t, m.entries, 2)
	assert.Equal(t, schema.Tool, m.entries[1].role)
	assert.Equal(t, "执行模式: code", m.entries[1].content)
	assert.Empty(t, m.input.Value())
}

func TestQuestionStartsThinking(t *testing.T) {
	m := newChatModel(context.Background(), nopBackend{}, ui.ChatOptions{})
	m, cmd := typeLine(t, m, "What is BERT?")
	assert.True(t, m.thinking)
	assert.NotNil(t, cmd)
	require.Len(t, m.entries, 1)

	// 运行中再次回车不会丢失输入
	m, _ = typeLine(t, m, "second")
	assert.Len(t, m.entries, 1)
	assert.Equal(t, "second", m.input.Value())
}

func TestBackendResultStreamsAnswer(t *testing.T) {
	m := newChatModel(context.Background(), nopBackend{}, ui.ChatOptions{})
	m.thinking = true
	long := "BERT pre-trains deep bidirectional representations from unlabeled text by jointly conditioning on both left and right context."

	next, cmd := m.Update(backendResultMsg{answer: long})
	m = next.(chatModel)
	assert.False(t, m.thinking)
	assert.NotNil(t, cmd)
	assert.True(t, m.streaming)
	assert.Equal(t, long[:32], m.overrideContent[0])

	for m.streaming {
		next, _ = m.Update(streamTickMsg{})
		m = next.(chatModel)
	}
	assert.Equal(t, long, m.overrideContent[0])

	next, _ = m.Update(backendResultMsg{err: errors.New("boom")})
	m = next.(chatModel)
	assert.Equal(t, "发生错误：boom", m.entries[len(m.entries)-1].content)
}
