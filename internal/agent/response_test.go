package agent

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResponse(t *testing.T) {
	st := NewState("s1", "How is BERT trained?", []string{"p1"}, ModeCode)
	st.Plan = []string{"retrieve", "plot"}
	st.Messages = append(st.Messages,
		schema.AssistantMessage("", toolCalls(1)),
		schema.ToolMessage("{}", "call_0"),
		schema.UserMessage(textRetryFeedback),
		schema.UserMessage("rewritten question"),
		schema.AssistantMessage("BERT uses Masked Language Modeling and Next-Sentence Prediction.", nil),
	)
	st.Documents = []Document{
		{Content: "chunk text", Metadata: DocumentMetadata{Source: "Page 2 - Section Methods", PageNumber: 2, Section: "Methods", PaperID: "p1", ChunkID: "p1_4", Score: 0.8765}},
		{Content: "arxiv abstract", Metadata: DocumentMetadata{Source: "http://arxiv.org/pdf/1", URL: "http://arxiv.org/pdf/1", Score: 0.5}},
		{Content: "web text", Metadata: DocumentMetadata{Source: "web_search"}},
		{Content: "plot saved", Metadata: DocumentMetadata{Source: "execute_code", Artifact: &Artifact{Type: "image", Path: "/static/exports/a.png", Name: "a.png"}}},
	}
	st.Artifacts = []Artifact{{Type: "image", Path: "/static/exports/a.png", Name: "a.png"}}
	st.RetryCount = 1
	st.Steps = 7
	st.LastNode = NodeGradeGeneration

	resp := BuildResponse(&Result{State: st, Outcome: OutcomeSupported}, true)

	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, OutcomeSupported, resp.Outcome)
	assert.Equal(t, "BERT uses Masked Language Modeling and Next-Sentence Prediction.\n\n![a.png](/static/exports/a.png)", resp.Answer)
	assert.Equal(t, []string{"BERT", "Masked", "Language", "Modeling", "Next-Sentence", "Prediction"}, resp.Concepts)

	require.Len(t, resp.Citations, 2)
	assert.Equal(t, Citation{Paper: "p1", Page: 2, ChunkID: "p1_4", Confidence: 0.88, Section: "Methods"}, resp.Citations[0])
	assert.Equal(t, "http://arxiv.org/pdf/1", resp.Citations[1].Paper)
	require.Len(t, resp.RetrievedChunks, 3)
	assert.Equal(t, RetrievedChunk{Text: "chunk text", Page: 2, Section: "Methods", Confidence: 0.88}, resp.RetrievedChunks[0])
	assert.Len(t, resp.Artifacts, 1)

	require.NotNil(t, resp.Reasoning)
	assert.Equal(t, []string{"retrieve", "plot"}, resp.Reasoning.Plan)
	assert.Equal(t, []string{"tool_0"}, resp.Reasoning.ToolCalls)
	assert.Equal(t, []string{"rewritten question"}, resp.Reasoning.Rewrites)
	assert.Equal(t, 1, resp.Reasoning.RetryCount)
	assert.Equal(t, 7, resp.Reasoning.Steps)
}

func TestBuildResponseArtifactAlreadyReferenced(t *testing.T) {
	st := NewState("s1", "plot", nil, ModeCode)
	st.Messages = append(st.Messages, schema.AssistantMessage("See ![chart](/static/exports/a.png).", nil))
	st.Artifacts = []Artifact{{Type: "image", Path: "/static/exports/a.png", Name: "a.png"}}

	resp := BuildResponse(&Result{State: st, Outcome: OutcomeSupported}, false)
	assert.Equal(t, "See ![chart](/static/exports/a.png).", resp.Answer)
	assert.Nil(t, resp.Reasoning)
	assert.NotNil(t, resp.Citations)
	assert.NotNil(t, resp.RetrievedChunks)
}

func TestBuildResponseWithoutAnswer(t *testing.T) {
	st := NewState("s1", "q", nil, ModeText)

	resp := BuildResponse(&Result{State: st, Outcome: OutcomeRetryExhausted}, false)
	assert.Equal(t, noAnswerText, resp.Answer)
	assert.Equal(t, []string{}, resp.Concepts)

	resp = BuildResponse(&Result{State: st, Outcome: OutcomeStepBudgetExhausted}, false)
	assert.Equal(t, budgetAnswerText, resp.Answer)
}

func TestBuildResponseKeepsCitedChunks(t *testing.T) {
	docs := []Document{
		{Content: "mlm", Metadata: DocumentMetadata{PaperID: "p1", ChunkID: "p1_1", PageNumber: 1, Score: 0.9}},
		{Content: "nsp", Metadata: DocumentMetadata{PaperID: "p1", ChunkID: "p1_2", PageNumber: 2, Score: 0.8}},
		{Content: "plot", Metadata: DocumentMetadata{Source: "execute_code", Artifact: &Artifact{Path: "/static/exports/a.png", Name: "a.png"}}},
		{Content: "glue", Metadata: DocumentMetadata{PaperID: "p2", ChunkID: "p2_7", PageNumber: 5, Score: 0.7}},
	}
	cases := []struct {
		name   string
		answer string
		want   []string
	}{
		{"single marker", "BERT masks tokens [1].", []string{"p1_1"}},
		{"grouped and source markers", "It also predicts sentences [Source 2] and is evaluated on GLUE [1, 3].", []string{"p1_1", "p1_2", "p2_7"}},
		{"artifact not counted", "Evaluated on GLUE [3].", []string{"p2_7"}},
		{"no markers keeps all", "BERT is bidirectional.", []string{"p1_1", "p1_2", "p2_7"}},
		{"out of range marker ignored", "Published in [2019].", []string{"p1_1", "p1_2", "p2_7"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := NewState("s1", "q", nil, ModeText)
			st.Messages = append(st.Messages, schema.AssistantMessage(tc.answer, nil))
			st.Documents = docs

			resp := BuildResponse(&Result{State: st, Outcome: OutcomeSupported}, false)
			var got []string
			for _, c := range resp.Citations {
				got = append(got, c.ChunkID)
			}
			assert.Equal(t, tc.want, got)
			assert.Len(t, resp.RetrievedChunks, 3)
		})
	}
}
