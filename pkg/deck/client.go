// Package deck 提供了一个与外部幻灯片合并服务交互的客户端。
// 合并逻辑（下载、拼装、回传 pptx）完全由外部服务完成。
package deck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"rfx-assist-go/internal/config"
	"time"
)

// Client 定义了幻灯片合并服务的接口。
type Client interface {
	// MergeSlides 请求将多个幻灯片 URL 合并为一份演示文稿，返回合并后的 URL。
	MergeSlides(ctx context.Context, slideURLs []string) (string, error)
}

type httpClient struct {
	serviceURL string
	client     *http.Client
}

// NewClient 创建一个新的幻灯片合并客户端实例。
func NewClient(cfg config.DeckConfig) Client {
	return &httpClient{
		serviceURL: cfg.ServiceURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type mergeRequest struct {
	Slides []string `json:"slides"`
}

type mergeResponse struct {
	URL string `json:"url"`
}

// MergeSlides 调用合并服务并返回产物 URL。
func (c *httpClient) MergeSlides(ctx context.Context, slideURLs []string) (string, error) {
	if len(slideURLs) == 0 {
		return "", fmt.Errorf("没有可合并的幻灯片")
	}

	reqBytes, err := json.Marshal(mergeRequest{Slides: slideURLs})
	if err != nil {
		return "", fmt.Errorf("序列化合并请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.serviceURL+"/merge", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("创建合并请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用合并服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("合并服务返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	var mergeResp mergeResponse
	if err := json.NewDecoder(resp.Body).Decode(&mergeResp); err != nil {
		return "", fmt.Errorf("读取合并服务响应失败: %w", err)
	}
	if mergeResp.URL == "" {
		return "", fmt.Errorf("合并服务未返回产物 URL")
	}
	return mergeResp.URL, nil
}
