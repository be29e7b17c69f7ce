package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

type Plan struct {
	Steps []string `json:"steps"`
}

type Planner struct {
	out  *structured
	tmpl prompt.ChatTemplate
}

func NewPlanner(cm model.ToolCallingChatModel) (*Planner, error) {
	out, err := newStructured(cm, &schema.ToolInfo{
		Name: "plan",
		Desc: "Plan to follow for answering the user's request.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"steps": {
				Desc:     "different steps to follow, should be in sorted order",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: true,
			},
		}),
	})
	if err != nil {
		return nil, err
	}
	return &Planner{out: out, tmpl: plannerTemplate()}, nil
}

// Plan 为目标生成有序步骤，空白步骤会被丢弃
func (p *Planner) Plan(ctx context.Context, objective string) ([]string, error) {
	msgs, err := p.tmpl.Format(ctx, map[string]any{"objective": objective})
	if err != nil {
		return nil, fmt.Errorf("format planner prompt: %w", err)
	}
	var plan Plan
	if _, err := p.out.generate(ctx, msgs, &plan); err != nil {
		return nil, err
	}
	steps := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	return steps, nil
}
