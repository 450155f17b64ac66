// Package analysis provides a client for the external journal text-analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mindscribe-go/internal/config"
	"mindscribe-go/internal/model"
	"mindscribe-go/pkg/log"
)

// ErrAnalysisUnavailable 表示分析服务不可用：传输失败、非 2xx 或响应体无法解析。
var ErrAnalysisUnavailable = errors.New("analysis service unavailable")

// Client defines the interface for an analysis client.
type Client interface {
	Analyze(ctx context.Context, text string) (*model.AnalysisResult, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new analysis client from config.
func NewClient(cfg config.AnalysisConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Summary  string   `json:"summary"`
	Emotion  string   `json:"emotion"`
	Alert    bool     `json:"alert"`
	Keywords []string `json:"keywords"`
}

// Analyze 调用 POST {base_url}/analyze，只尝试一次。
func (c *httpClient) Analyze(ctx context.Context, text string) (*model.AnalysisResult, error) {
	log.Infof("[AnalysisClient] 开始调用分析服务, input_len: %d", len(text))
	reqBytes, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrAnalysisUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[AnalysisClient] 调用分析服务失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("[AnalysisClient] 分析服务返回非 2xx 状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: status %s", ErrAnalysisUnavailable, resp.Status)
	}

	var body analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Errorf("[AnalysisClient] 解析分析服务响应失败, error: %v", err)
		return nil, fmt.Errorf("%w: decode response: %v", ErrAnalysisUnavailable, err)
	}

	result := &model.AnalysisResult{
		Summary: body.Summary,
		Emotion: strings.ToLower(strings.TrimSpace(body.Emotion)),
		Alert:   body.Alert,
	}
	if len(body.Keywords) > 0 {
		result.Keywords = body.Keywords
	}
	log.Infof("[AnalysisClient] 分析完成, emotion: %s, alert: %t, keywords: %d", result.Emotion, result.Alert, len(result.Keywords))
	return result, nil
}

// Fallback 返回分析失败时使用的默认结果。
func Fallback() *model.AnalysisResult {
	return &model.AnalysisResult{Summary: "", Emotion: "neutral", Alert: false}
}

// AnalyzeOrDefault 调用 Analyze，失败时返回 Fallback() 以及原始错误。
func AnalyzeOrDefault(ctx context.Context, c Client, text string) (*model.AnalysisResult, error) {
	result, err := c.Analyze(ctx, text)
	if err != nil {
		return Fallback(), err
	}
	return result, nil
}
