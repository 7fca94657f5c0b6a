package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// ollamaProvider 对接本地 Ollama 的 /api/chat（非流式）。
type ollamaProvider struct {
	name    string
	baseURL string
	model   string
	gen     *GenerationParams
	client  *http.Client
}

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (p *ollamaProvider) Name() string { return p.name }

func (p *ollamaProvider) Complete(ctx context.Context, payload Payload) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    p.model,
		Messages: payload.Messages,
		Stream:   false,
	}
	if p.gen != nil {
		opts := &ollamaOptions{Temperature: p.gen.Temperature, TopP: p.gen.TopP}
		if p.gen.MaxTokens != nil {
			opts.NumPredict = *p.gen.MaxTokens
		}
		reqBody.Options = opts
	}

	resp, err := postJSON(ctx, p.client, p.name, p.baseURL+"/api/chat", nil, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", malformed(p.name, "decode response: %v", err)
	}
	if out.Error != "" {
		return "", malformed(p.name, "ollama error: %s", out.Error)
	}
	if !out.Done {
		return "", malformed(p.name, "generation not finished")
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", malformed(p.name, "empty completion")
	}
	return out.Message.Content, nil
}
