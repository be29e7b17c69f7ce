package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

type GraderKind string

const (
	GraderRelevance     GraderKind = "relevance"
	GraderHallucination GraderKind = "hallucination"
	GraderAdequacy      GraderKind = "adequacy"
)

// Grade 是评分器的结构化输出
type Grade struct {
	BinaryScore string `json:"binary_score"`
}

func (g Grade) Yes() bool {
	return strings.EqualFold(strings.TrimSpace(g.BinaryScore), "yes")
}

func (g Grade) valid() bool {
	s := strings.ToLower(strings.TrimSpace(g.BinaryScore))
	return s == "yes" || s == "no"
}

// Grader 二分类评分器：(context, target) -> yes/no
type Grader struct {
	kind GraderKind
	out  *structured
	tmpl prompt.ChatTemplate
}

func gradeToolInfo(desc string) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "grade",
		Desc: "Report the binary grading result.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"binary_score": {
				Desc:     desc,
				Type:     schema.String,
				Enum:     []string{"yes", "no"},
				Required: true,
			},
		}),
	}
}

// NewGrader 按类型创建评分器。
// relevance: context=检索结果, target=问题；
// hallucination: context=事实集合, target=回答；
// adequacy: context=问题, target=回答。
func NewGrader(kind GraderKind, cm model.ToolCallingChatModel) (*Grader, error) {
	var (
		tmpl prompt.ChatTemplate
		desc string
	)
	switch kind {
	case GraderRelevance:
		tmpl = graderTemplate(relevanceSystemPrompt, "Retrieved document", "User question")
		desc = "Documents are relevant to the question, 'yes' or 'no'"
	case GraderHallucination:
		tmpl = graderTemplate(hallucinationSystemPrompt, "Set of facts", "LLM generation")
		desc = "Answer is grounded in the facts, 'yes' or 'no'"
	case GraderAdequacy:
		tmpl = graderTemplate(adequacySystemPrompt, "User question", "LLM generation")
		desc = "Answer addresses the question, 'yes' or 'no'"
	default:
		return nil, fmt.Errorf("unknown grader kind %q", kind)
	}
	out, err := newStructured(cm, gradeToolInfo(desc))
	if err != nil {
		return nil, err
	}
	return &Grader{kind: kind, out: out, tmpl: tmpl}, nil
}

func (g *Grader) Kind() GraderKind {
	return g.kind
}

// Grade 返回 true 表示 yes。模型输出无法识别时返回 ErrMalformedOutput。
func (g *Grader) Grade(ctx context.Context, contextText, target string) (bool, error) {
	msgs, err := g.tmpl.Format(ctx, map[string]any{
		"context": contextText,
		"target":  target,
	})
	if err != nil {
		return false, fmt.Errorf("format %s prompt: %w", g.kind, err)
	}

	var grade Grade
	resp, err := g.out.generate(ctx, msgs, &grade)
	if err == nil && grade.valid() {
		return grade.Yes(), nil
	}
	// 部分模型不调用工具，只回复 yes/no
	if resp != nil {
		switch word := firstWord(resp.Content); word {
		case "yes", "no":
			return word == "yes", nil
		}
	}
	if err == nil {
		err = fmt.Errorf("%w: %s binary_score %q", ErrMalformedOutput, g.kind, grade.BinaryScore)
	}
	return false, fmt.Errorf("%s grader: %w", g.kind, err)
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Graders 汇总编排所需的三个评分器
type Graders struct {
	Relevance     *Grader
	Hallucination *Grader
	Adequacy      *Grader
}

func NewGraders(cm model.ToolCallingChatModel) (*Graders, error) {
	rel, err := NewGrader(GraderRelevance, cm)
	if err != nil {
		return nil, err
	}
	hal, err := NewGrader(GraderHallucination, cm)
	if err != nil {
		return nil, err
	}
	ade, err := NewGrader(GraderAdequacy, cm)
	if err != nil {
		return nil, err
	}
	return &Graders{Relevance: rel, Hallucination: hal, Adequacy: ade}, nil
}
