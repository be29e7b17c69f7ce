package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/wwwzy/PaperAgent/internal/llm"
	"github.com/wwwzy/PaperAgent/internal/tools"
)

// Grader 二分类评分：(context, target) -> yes/no
type Grader interface {
	Grade(ctx context.Context, contextText, target string) (bool, error)
}

type Planner interface {
	Plan(ctx context.Context, objective string) ([]string, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, question string) (string, error)
}

// Components 汇总编排所需的全部协作者，进程内构造一次后显式传入 Runner
type Components struct {
	ChatModel model.ToolCallingChatModel

	Relevance     Grader
	Hallucination Grader
	Adequacy      Grader

	Planner  Planner
	Rewriter Rewriter

	Tools *tools.Set
}

func (c Components) validate() error {
	switch {
	case c.ChatModel == nil:
		return errors.New("chat model is required")
	case c.Relevance == nil || c.Hallucination == nil || c.Adequacy == nil:
		return errors.New("all three graders are required")
	case c.Planner == nil:
		return errors.New("planner is required")
	case c.Rewriter == nil:
		return errors.New("rewriter is required")
	case c.Tools == nil:
		return errors.New("tool set is required")
	}
	return nil
}

// NewComponents 用主模型和评分模型组装默认实现
func NewComponents(chat, grader model.ToolCallingChatModel, set *tools.Set) (Components, error) {
	graders, err := llm.NewGraders(grader)
	if err != nil {
		return Components{}, fmt.Errorf("init graders: %w", err)
	}
	planner, err := llm.NewPlanner(grader)
	if err != nil {
		return Components{}, fmt.Errorf("init planner: %w", err)
	}
	return Components{
		ChatModel:     chat,
		Relevance:     graders.Relevance,
		Hallucination: graders.Hallucination,
		Adequacy:      graders.Adequacy,
		Planner:       planner,
		Rewriter:      llm.NewRewriter(grader),
		Tools:         set,
	}, nil
}
