package llm

import (
	"fmt"
	"net/http"
	"strings"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
)

const defaultAnthropicMaxTokens = 1024

// generationParams 把配置中的零值视为“未设置”。
func generationParams(gen config.LLMGenerationConfig) *GenerationParams {
	params := &GenerationParams{}
	if gen.Temperature > 0 {
		t := gen.Temperature
		params.Temperature = &t
	}
	if gen.TopP > 0 {
		p := gen.TopP
		params.TopP = &p
	}
	if gen.MaxTokens > 0 {
		m := gen.MaxTokens
		params.MaxTokens = &m
	}
	return params
}

// NewProvider 根据配置创建提供方适配器。
func NewProvider(cfg config.ProviderConfig, gen config.LLMGenerationConfig, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	params := generationParams(gen)

	switch cfg.Kind {
	case "openai":
		return &openAIProvider{name: cfg.Name, baseURL: baseURL, apiKey: cfg.APIKey, model: cfg.Model, gen: params, client: client}, nil
	case "anthropic":
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return &anthropicProvider{
			name: cfg.Name, baseURL: baseURL, apiKey: cfg.APIKey, model: cfg.Model,
			maxTokens: defaultAnthropicMaxTokens, gen: params, client: client,
		}, nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &ollamaProvider{name: cfg.Name, baseURL: baseURL, model: cfg.Model, gen: params, client: client}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider kind %q", model.ErrValidation, cfg.Kind)
	}
}

// NewGatewayFromConfig 按配置创建所有提供方并组装网关。
func NewGatewayFromConfig(cfg config.LLMConfig) (*Gateway, error) {
	client := &http.Client{}
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, cfg.Generation, client)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		providers = append(providers, p)
	}
	return NewGateway(providers, cfg.ProviderOrder(), cfg.AttemptTimeout)
}
