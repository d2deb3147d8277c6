package generation

import (
	"context"

	"github.com/docuchat/backend-go/internal/config"
	apperrors "github.com/docuchat/backend-go/internal/errors"
)

// 对话角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 单条对话消息
type Message struct {
	Role    string
	Content string
}

// Generator 定义文本生成后端接口
// Streaming为false的实现只支持整段补全，流式调用由上层模拟
type Generator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, onDelta func(content string) error) error
	Streaming() bool
}

// NewGenerator 根据配置选择生成后端
func NewGenerator(cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "local", "":
		return NewLocalGenerator(), nil
	default:
		return nil, apperrors.NewValidationError("unknown generation provider: " + cfg.Provider)
	}
}
