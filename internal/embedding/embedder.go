package embedding

import (
	"context"

	"github.com/docuchat/backend-go/internal/config"
	apperrors "github.com/docuchat/backend-go/internal/errors"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewEmbedder 根据配置选择向量化实现
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.BatchSize)
	case "local", "":
		return NewLocalEmbedder(cfg.Dimensions), nil
	default:
		return nil, apperrors.NewValidationError("unknown embedding provider: " + cfg.Provider)
	}
}
