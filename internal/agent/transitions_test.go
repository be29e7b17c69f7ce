package agent

import (
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	cases := []struct {
		node string
		sig  Signal
		want string
	}{
		{NodePlanner, SignalDone, NodeAgent},
		{NodeAgent, SignalToolCalls, NodeTools},
		{NodeAgent, SignalFinal, NodeGradeGeneration},
		{NodeTools, SignalDone, NodeGradeDocuments},
		{NodeGradeDocuments, SignalRelevant, NodeAgent},
		{NodeGradeDocuments, SignalIrrelevant, NodeRewrite},
		{NodeRewrite, SignalDone, NodeAgent},
		{NodeGradeGeneration, SignalSupported, compose.END},
		{NodeGradeGeneration, SignalUnsupported, NodeAgent},
		{NodeGradeGeneration, SignalRetryExhausted, compose.END},
	}
	for _, tc := range cases {
		t.Run(tc.node+"/"+string(tc.sig), func(t *testing.T) {
			got, err := Next(tc.node, tc.sig)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextRejectsUnknown(t *testing.T) {
	_, err := Next("summarize", SignalDone)
	assert.ErrorIs(t, err, ErrNoTransition)

	_, err = Next(NodeAgent, SignalRelevant)
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestPlannerOnlyFromEntry(t *testing.T) {
	for node := range transitions {
		assert.NotContains(t, successors(node), NodePlanner, node)
	}
}

func TestSignalOf(t *testing.T) {
	yes, no := boolPtr(true), boolPtr(false)
	cases := []struct {
		name string
		node string
		st   AgentState
		want Signal
	}{
		{"agent with calls", NodeAgent, AgentState{NextStepToolCalls: toolCalls(1)}, SignalToolCalls},
		{"agent final", NodeAgent, AgentState{}, SignalFinal},
		{"relevant", NodeGradeDocuments, AgentState{IsRelevant: yes}, SignalRelevant},
		{"irrelevant", NodeGradeDocuments, AgentState{IsRelevant: no}, SignalIrrelevant},
		{"ungraded counts as irrelevant", NodeGradeDocuments, AgentState{}, SignalIrrelevant},
		{"supported", NodeGradeGeneration, AgentState{IsSupported: yes, RetryCount: 9}, SignalSupported},
		{"retry", NodeGradeGeneration, AgentState{IsSupported: no, RetryCount: 5}, SignalUnsupported},
		{"exhausted", NodeGradeGeneration, AgentState{IsSupported: no, RetryCount: 6}, SignalRetryExhausted},
		{"planner", NodePlanner, AgentState{}, SignalDone},
		{"rewrite", NodeRewrite, AgentState{}, SignalDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SignalOf(tc.node, tc.st, 5))
		})
	}
}

func TestResumeTarget(t *testing.T) {
	next, err := resumeTarget(AgentState{}, 5)
	require.NoError(t, err)
	assert.Equal(t, NodePlanner, next)

	next, err = resumeTarget(AgentState{LastNode: NodeTools}, 5)
	require.NoError(t, err)
	assert.Equal(t, NodeGradeDocuments, next)

	next, err = resumeTarget(AgentState{LastNode: NodeGradeGeneration, IsSupported: boolPtr(true)}, 5)
	require.NoError(t, err)
	assert.Equal(t, compose.END, next)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeText, "text": ModeText, "code": ModeCode, "python": ModeCode} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("bash")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"negative retries": func(c *Config) { c.MaxRetries = -1 },
		"zero budget":      func(c *Config) { c.StepBudget = 0 },
		"bad mode":         func(c *Config) { c.ExecutionMode = "shell" },
		"bad policy":       func(c *Config) { c.OnRetryExhausted = "maybe" },
		"bad grading":      func(c *Config) { c.RelevanceGrading = "all" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
