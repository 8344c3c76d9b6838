package ai

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

var mockTemplates = []struct {
	excerpt int
	format  string
}{
	{50, "You asked about \"%s...\". This answer was produced by the offline demo provider because no AI backend was reachable. Configure Ollama or an OpenAI compatible endpoint for real completions."},
	{30, "Regarding \"%s...\": the gateway is running in demo mode. Your payment was processed normally and this placeholder text stands in for a model response."},
	{40, "Thanks for your prompt \"%s...\". A simulated reply is returned while the configured AI provider is unavailable."},
}

// MockProvider 离线模拟提供商
type MockProvider struct {
	minDelay time.Duration
	maxDelay time.Duration
	pick     func(n int) int
}

// NewMockProvider 创建模拟提供商
func NewMockProvider(minDelay, maxDelay time.Duration) *MockProvider {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &MockProvider{minDelay: minDelay, maxDelay: maxDelay, pick: rand.Intn}
}

func (p *MockProvider) Name() string  { return ProviderMock }
func (p *MockProvider) Model() string { return "mock" }

// Generate 返回模板文本，只有上下文取消时失败
func (p *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	delay := p.minDelay
	if spread := p.maxDelay - p.minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	tpl := mockTemplates[p.pick(len(mockTemplates))]
	return fmt.Sprintf(tpl.format, truncate(prompt, tpl.excerpt)), nil
}

// Ping 模拟提供商始终可用
func (p *MockProvider) Ping(ctx context.Context) error {
	return nil
}
