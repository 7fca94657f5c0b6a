package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// openAIProvider 对接 OpenAI 兼容的 /chat/completions 流式接口（DeepSeek、通义等）。
// 流式分块先写入缓冲区，收到 [DONE] 或 finish_reason 后才视为完整。
type openAIProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	gen     *GenerationParams
	client  *http.Client
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Complete(ctx context.Context, payload Payload) (string, error) {
	reqBody := chatRequest{
		Model:    p.model,
		Messages: payload.Messages,
		Stream:   true,
	}
	if p.gen != nil {
		reqBody.Temperature = p.gen.Temperature
		reqBody.TopP = p.gen.TopP
		reqBody.MaxTokens = p.gen.MaxTokens
	}

	headers := map[string]string{"Accept": "text/event-stream"}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	resp, err := postJSON(ctx, p.client, p.name, p.baseURL+"/chat/completions", headers, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var (
		answer   strings.Builder
		finished bool
	)
	reader := bufio.NewReader(resp.Body)
	for !finished {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", readFailure(p.name, err)
		}

		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data:"); ok {
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				finished = true
				break
			}
			var chunk chatStreamChunk
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
				return "", malformed(p.name, "decode stream chunk: %v", jerr)
			}
			for _, choice := range chunk.Choices {
				answer.WriteString(choice.Delta.Content)
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finished = true
				}
			}
		}

		if err == io.EOF {
			break
		}
	}

	if !finished {
		return "", malformed(p.name, "stream ended before completion")
	}
	if strings.TrimSpace(answer.String()) == "" {
		return "", malformed(p.name, "empty completion")
	}
	return answer.String(), nil
}
