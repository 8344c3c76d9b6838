package ai

import (
	"context"
	"errors"
)

// 提供商名称
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ErrAllProvidersFailed 所有提供商（包括模拟）都失败
var ErrAllProvidersFailed = errors.New("all AI providers failed")

// Provider 文本生成策略
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
}

// Result 生成结果
type Result struct {
	Text            string `json:"text"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
}
