package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// ErrAPIFailure Cloudflare 返回 success=false
var ErrAPIFailure = errors.New("cloudflare api failure")

// Client Cloudflare API 的最小客户端：建 Zone、查激活状态、
// 开邮件路由、配 catch-all 转发规则。只覆盖自有域名绑定流程
// 需要的四个端点。
type Client struct {
	baseURL    string
	apiToken   string
	accountID  string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient 创建 Cloudflare 客户端。
func NewClient(apiToken, accountID string, log *zap.Logger) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		apiToken:  apiToken,
		accountID: accountID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// SetBaseURL 覆盖 API 地址，仅测试使用。
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// apiEnvelope Cloudflare 统一响应壳。
type apiEnvelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Zone 创建/查询 Zone 的结果。
type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	NameServers []string `json:"name_servers"`
}

// CreateZone 为域名创建 Zone，返回 Zone ID 与需要用户配置的 NS。
func (c *Client) CreateZone(ctx context.Context, domainName string) (*Zone, error) {
	payload := map[string]any{
		"name":    domainName,
		"account": map[string]string{"id": c.accountID},
		"type":    "full",
	}
	var zone Zone
	if err := c.do(ctx, http.MethodPost, "/zones", payload, &zone); err != nil {
		return nil, fmt.Errorf("create zone %s: %w", domainName, err)
	}
	return &zone, nil
}

// GetZone 查询 Zone 当前状态（pending / active）。
func (c *Client) GetZone(ctx context.Context, zoneID string) (*Zone, error) {
	var zone Zone
	if err := c.do(ctx, http.MethodGet, "/zones/"+zoneID, nil, &zone); err != nil {
		return nil, fmt.Errorf("get zone %s: %w", zoneID, err)
	}
	return &zone, nil
}

// EnableEmailRouting 为 Zone 开启邮件路由（自动下发 MX 与 SPF）。
func (c *Client) EnableEmailRouting(ctx context.Context, zoneID string) error {
	path := fmt.Sprintf("/zones/%s/email/routing/enable", zoneID)
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("enable email routing: %w", err)
	}
	return nil
}

// CreateCatchAllRule 配置 catch-all 规则，把整个域名的来信
// 转投到 Worker，由 Worker 再回调本服务的入站 webhook。
func (c *Client) CreateCatchAllRule(ctx context.Context, zoneID, workerName string) error {
	path := fmt.Sprintf("/zones/%s/email/routing/rules/catch_all", zoneID)
	payload := map[string]any{
		"enabled":  true,
		"matchers": []map[string]string{{"type": "all"}},
		"actions": []map[string]any{
			{"type": "worker", "value": []string{workerName}},
		},
	}
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("create catch-all rule: %w", err)
	}
	return nil
}

// do 发送请求并解开 Cloudflare 的统一响应壳。
func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !envelope.Success {
		msg := "unknown error"
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		c.log.Warn("cloudflare api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return fmt.Errorf("%w: %s", ErrAPIFailure, msg)
	}
	if result != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}
