package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider 对接 Anthropic Messages API（非流式）。
type anthropicProvider struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	gen       *GenerationParams
	client    *http.Client
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (p *anthropicProvider) Name() string { return p.name }

// toAnthropicMessages 抽出 system 消息，合并相邻同角色消息，并保证以 user 开头。
func toAnthropicMessages(in []Message) (string, []Message) {
	var system []string
	var out []Message
	for _, m := range in {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		if len(out) == 0 && m.Role != "user" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return strings.Join(system, "\n\n"), out
}

func (p *anthropicProvider) Complete(ctx context.Context, payload Payload) (string, error) {
	system, messages := toAnthropicMessages(payload.Messages)
	reqBody := messagesRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
		System:    system,
	}
	if p.gen != nil {
		reqBody.Temperature = p.gen.Temperature
		reqBody.TopP = p.gen.TopP
		if p.gen.MaxTokens != nil {
			reqBody.MaxTokens = *p.gen.MaxTokens
		}
	}

	resp, err := postJSON(ctx, p.client, p.name, p.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", malformed(p.name, "decode response: %v", err)
	}
	if out.StopReason == "" {
		return "", malformed(p.name, "response without stop_reason")
	}
	var answer strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(answer.String()) == "" {
		return "", malformed(p.name, "empty completion")
	}
	return answer.String(), nil
}
