package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/philippgille/chromem-go"
)

type EmbeddingConfig struct {
	// Provider: openai | ollama | hash
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	// Dimensions 仅 hash 使用
	Dimensions int `mapstructure:"dimensions"`
}

// NewEmbeddingFunc 根据配置构造 chromem 使用的向量化函数
func NewEmbeddingFunc(cfg EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("embedding.api_key is required for the openai provider (or set OPENAI_API_KEY)")
		}
		model := cfg.Model
		if model == "" {
			model = string(openai.EmbeddingModelTextEmbedding3Small)
		}
		return NewOpenAIEmbedding(cfg.APIKey, cfg.BaseURL, model), nil
	case "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL), nil
	case "hash":
		return NewHashEmbedding(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewOpenAIEmbedding 使用 openai-go 调用 embeddings 接口
func NewOpenAIEmbedding(apiKey, baseURL, model string) chromem.EmbeddingFunc {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(model),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: []string{text},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no embedding returned")
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vec[i] = float32(v)
		}
		return vec, nil
	}
}

// NewHashEmbedding 是离线可用的确定性向量化（特征哈希 + L2 归一化），
// 用于没有 embedding 服务的本地试用和测试。
func NewHashEmbedding(dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = 256
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		for _, tok := range Tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			sum := h.Sum32()
			sign := float32(1)
			if sum&1 == 1 {
				sign = -1
			}
			vec[int(sum>>1)%dim] += sign
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
		return vec, nil
	}
}

// Tokenize 小写并按非字母数字切分，去掉长度小于 2 的词
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
