package agent

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/PaperAgent/internal/concepts"
)

const (
	noAnswerText      = "I couldn't find relevant information in the papers to answer this question."
	budgetAnswerText  = "I couldn't finish answering this question within the step budget. Partial results are listed below."
	maxAnswerConcepts = 10
)

// citationMarker 匹配回答里的 [1]、[1, 3]、[Source 2] 这类引用标记
var citationMarker = regexp.MustCompile(`\[((?:Source\s+)?\d+(?:\s*,\s*(?:Source\s+)?\d+)*)\]`)

type Citation struct {
	Paper      string  `json:"paper"`
	Page       int     `json:"page"`
	ChunkID    string  `json:"chunk_id"`
	Confidence float64 `json:"confidence"`
	Section    string  `json:"section"`
}

type RetrievedChunk struct {
	Text       string  `json:"text"`
	Page       int     `json:"page"`
	Section    string  `json:"section"`
	Confidence float64 `json:"confidence"`
}

// Reasoning 是可选的运行轨迹摘要
type Reasoning struct {
	Plan       []string `json:"plan"`
	ToolCalls  []string `json:"tool_calls"`
	Rewrites   []string `json:"rewrites,omitempty"`
	RetryCount int      `json:"retry_count"`
	Steps      int      `json:"steps"`
	LastNode   string   `json:"last_node"`
}

// Response 是对外返回的问答结果
type Response struct {
	SessionID       string           `json:"session_id"`
	Answer          string           `json:"answer"`
	Citations       []Citation       `json:"citations"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	Concepts        []string         `json:"concepts"`
	Artifacts       []Artifact       `json:"artifacts,omitempty"`
	Reasoning       *Reasoning       `json:"reasoning,omitempty"`
	Outcome         Outcome          `json:"outcome"`
}

// BuildResponse 把运行结果转换成对外格式：
// 回答取最后一条有内容的助手消息，产物以 markdown 图片引用追加在回答末尾。
func BuildResponse(res *Result, includeReasoning bool) Response {
	st := res.State
	answer := st.LastAnswer()
	if answer == "" {
		answer = noAnswerText
		if res.Outcome == OutcomeStepBudgetExhausted {
			answer = budgetAnswerText
		}
	}
	conceptList := concepts.Extract(answer, maxAnswerConcepts)
	answer = appendArtifactRefs(answer, st.Artifacts)

	out := Response{
		SessionID:       st.SessionID,
		Answer:          answer,
		Citations:       make([]Citation, 0, len(st.Documents)),
		RetrievedChunks: make([]RetrievedChunk, 0, len(st.Documents)),
		Concepts:        conceptList,
		Artifacts:       st.Artifacts,
		Outcome:         res.Outcome,
	}
	if out.Concepts == nil {
		out.Concepts = []string{}
	}

	chunks := 0
	for _, d := range st.Documents {
		if d.Metadata.Artifact == nil {
			chunks++
		}
	}
	cited := citedIndexes(st.LastAnswer(), chunks)
	n := 0
	for _, d := range st.Documents {
		if d.Metadata.Artifact != nil {
			continue
		}
		n++
		conf := round2(d.Metadata.Score)
		out.RetrievedChunks = append(out.RetrievedChunks, RetrievedChunk{
			Text:       d.Content,
			Page:       d.Metadata.PageNumber,
			Section:    d.Metadata.Section,
			Confidence: conf,
		})
		paper := d.Metadata.PaperID
		if paper == "" {
			paper = d.Metadata.URL
		}
		if paper == "" {
			continue
		}
		if len(cited) > 0 && !cited[n] {
			continue
		}
		out.Citations = append(out.Citations, Citation{
			Paper:      paper,
			Page:       d.Metadata.PageNumber,
			ChunkID:    d.Metadata.ChunkID,
			Confidence: conf,
			Section:    d.Metadata.Section,
		})
	}

	if includeReasoning {
		out.Reasoning = reasoningOf(st)
	}
	return out
}

// citedIndexes 返回回答中引用到的片段序号（从 1 开始，对应 retrieved_chunks 的顺序）。
// 超出 total 的序号（例如 [2019]）忽略；没有有效标记时返回空，此时全部片段都作为引用。
func citedIndexes(answer string, total int) map[int]bool {
	cited := map[int]bool{}
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "Source"))
			if i, err := strconv.Atoi(part); err == nil && i > 0 && i <= total {
				cited[i] = true
			}
		}
	}
	return cited
}

func appendArtifactRefs(answer string, artifacts []Artifact) string {
	var b strings.Builder
	b.WriteString(answer)
	for _, a := range artifacts {
		if a.Path == "" || strings.Contains(answer, a.Path) {
			continue
		}
		fmt.Fprintf(&b, "\n\n![%s](%s)", a.Name, a.Path)
	}
	return b.String()
}

func reasoningOf(st AgentState) *Reasoning {
	r := &Reasoning{
		Plan:       st.Plan,
		ToolCalls:  []string{},
		RetryCount: st.RetryCount,
		Steps:      st.Steps,
		LastNode:   st.LastNode,
	}
	if r.Plan == nil {
		r.Plan = []string{}
	}
	// 第一条用户消息是原问题，之后非反馈的用户消息来自改写
	seenQuestion := false
	for _, m := range st.Messages {
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				r.ToolCalls = append(r.ToolCalls, tc.Function.Name)
			}
		case schema.User:
			if !seenQuestion {
				seenQuestion = true
				continue
			}
			if m.Content != codeRetryFeedback && m.Content != textRetryFeedback {
				r.Rewrites = append(r.Rewrites, m.Content)
			}
		}
	}
	return r
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
