package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/logger"
)

// Strategy 回退链中的一个提供商
type Strategy struct {
	Provider Provider
	Timeout  time.Duration
	Breaker  *CircuitBreaker
}

// ProviderStatus 单个提供商的探测结果
type ProviderStatus struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
	Breaker   string `json:"breaker,omitempty"`
}

// Availability 可用性报告
type Availability struct {
	Available bool             `json:"available"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Detail    string           `json:"detail,omitempty"`
	Providers []ProviderStatus `json:"providers"`
}

// Service 按顺序尝试各提供商的文本生成服务
type Service struct {
	strategies   []Strategy
	probeTimeout time.Duration
	logger       *zap.Logger
}

// NewService 根据配置构建回退链：主提供商 → OpenAI（已配置时） → 模拟
func NewService(cfg config.AIConfig) *Service {
	var strategies []Strategy
	breaker := func(name string) *CircuitBreaker {
		return NewCircuitBreaker(name, cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout)
	}

	ollama := Strategy{
		Provider: NewOllamaProvider(cfg.Ollama.BaseURL, cfg.Ollama.Model),
		Timeout:  cfg.Ollama.Timeout,
		Breaker:  breaker(ProviderOllama),
	}
	openaiConfigured := cfg.OpenAI.APIKey != ""
	openai := Strategy{
		Provider: NewOpenAIProvider(cfg.OpenAI.APIBase, cfg.OpenAI.APIKey, cfg.OpenAI.Model),
		Timeout:  cfg.OpenAI.Timeout,
		Breaker:  breaker(ProviderOpenAI),
	}

	switch cfg.Provider {
	case ProviderOllama:
		strategies = append(strategies, ollama)
		if openaiConfigured {
			strategies = append(strategies, openai)
		}
	case ProviderOpenAI:
		if openaiConfigured {
			strategies = append(strategies, openai)
		}
	}

	strategies = append(strategies, Strategy{Provider: NewMockProvider(cfg.Mock.MinDelay, cfg.Mock.MaxDelay)})
	return NewServiceWithStrategies(cfg.ProbeTimeout, strategies...)
}

// NewServiceWithStrategies 使用给定的策略链创建服务
func NewServiceWithStrategies(probeTimeout time.Duration, strategies ...Strategy) *Service {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Service{
		strategies:   strategies,
		probeTimeout: probeTimeout,
		logger:       logger.Named("ai"),
	}
}

// Providers 回退链中的提供商名称
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.strategies))
	for _, st := range s.strategies {
		names = append(names, st.Provider.Name())
	}
	return names
}

// Generate 依次尝试各提供商，全部失败时返回 ErrAllProvidersFailed
func (s *Service) Generate(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()
	var errs []error

	for _, st := range s.strategies {
		name := st.Provider.Name()
		attemptStart := time.Now()

		text, err := s.attempt(ctx, st, prompt)
		providerDuration.WithLabelValues(name).Observe(time.Since(attemptStart).Seconds())

		if err == nil {
			providerRequests.WithLabelValues(name, "success").Inc()
			return &Result{
				Text:            text,
				Provider:        name,
				Model:           st.Provider.Model(),
				ExecutionTimeMs: time.Since(start).Milliseconds(),
			}, nil
		}

		result := "error"
		if errors.Is(err, ErrCircuitOpen) {
			result = "skipped"
		}
		providerRequests.WithLabelValues(name, result).Inc()
		s.logger.Warn("AI提供商调用失败，尝试下一个", zap.String("provider", name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (s *Service) attempt(ctx context.Context, st Strategy, prompt string) (string, error) {
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	var text string
	call := func() error {
		var err error
		text, err = st.Provider.Generate(ctx, prompt)
		return err
	}

	if st.Breaker != nil {
		return text, st.Breaker.Call(call)
	}
	return text, call()
}

// CheckAvailability 探测所有提供商，仅用于状态展示
func (s *Service) CheckAvailability(ctx context.Context) Availability {
	report := Availability{Providers: make([]ProviderStatus, 0, len(s.strategies))}

	for _, st := range s.strategies {
		status := ProviderStatus{Name: st.Provider.Name(), Model: st.Provider.Model()}
		if st.Breaker != nil {
			status.Breaker = st.Breaker.State().String()
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		err := st.Provider.Ping(probeCtx)
		cancel()

		if err != nil {
			status.Detail = err.Error()
		} else {
			status.Available = true
			if !report.Available {
				report.Available = true
				report.Provider = status.Name
				report.Model = status.Model
			}
		}
		report.Providers = append(report.Providers, status)
	}

	if !report.Available {
		report.Detail = "no AI provider is reachable"
	} else if report.Provider == ProviderMock {
		report.Detail = "serving simulated responses"
	}
	return report
}
