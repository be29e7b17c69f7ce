package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
)

type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
	// GraderModelID 为空时评分器与主模型共用
	GraderModelID string  `mapstructure:"grader_model_id"`
	Temperature   float32 `mapstructure:"temperature"`
}

// NewChatModel 初始化 Ark ChatModel
func NewChatModel(ctx context.Context, cfg ArkConfig) (*ark.ChatModel, error) {
	return newArkModel(ctx, cfg, cfg.ModelID)
}

// NewGraderModel 评分、规划、改写使用的模型，温度固定为 0
func NewGraderModel(ctx context.Context, cfg ArkConfig) (*ark.ChatModel, error) {
	modelID := cfg.GraderModelID
	if modelID == "" {
		modelID = cfg.ModelID
	}
	cfg.Temperature = 0
	return newArkModel(ctx, cfg, modelID)
}

func newArkModel(ctx context.Context, cfg ArkConfig, modelID string) (*ark.ChatModel, error) {
	if cfg.APIKey == "" || modelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	temperature := cfg.Temperature
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:      cfg.APIKey,
		Model:       modelID,
		BaseURL:     cfg.BaseURL,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init ark chat model %s: %w", modelID, err)
	}
	return chatModel, nil
}
