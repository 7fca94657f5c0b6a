package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON 发送 JSON 请求。非 2xx 响应与传输错误都会转换为 *ProviderError。
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Reason: ReasonInvalidRequest, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &ProviderError{Provider: provider, Reason: ReasonInvalidRequest, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: provider, Reason: ReasonNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ProviderError{
			Provider:   provider,
			Reason:     ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}
	return resp, nil
}

// malformed 表示响应无法解析或不完整。
func malformed(provider string, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Provider: provider, Reason: ReasonUnknown, Err: fmt.Errorf(format, args...)}
}

// readFailure 区分读流时的超时/断连与其他错误。
func readFailure(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: ReasonNetwork, Err: fmt.Errorf("read response: %w", err)}
}
