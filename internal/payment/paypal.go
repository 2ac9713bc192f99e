package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PayPalGateway PayPal Orders API 的最小封装。
//
// 访问令牌在内存里缓存到过期前一分钟，跨实例不共享。
type PayPalGateway struct {
	baseURL      string
	clientID     string
	clientSecret string
	prices       map[string]string
	httpClient   *http.Client
	log          *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalGateway 创建 PayPal 网关。sandbox 决定走沙箱还是生产环境。
// prices 是套餐名到金额（如 "9.99"）的映射。
func NewPayPalGateway(clientID, clientSecret string, prices map[string]string, sandbox bool, log *zap.Logger) *PayPalGateway {
	baseURL := "https://api-m.paypal.com"
	if sandbox {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	return &PayPalGateway{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		prices:       prices,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: log,
	}
}

// SetBaseURL 覆盖 API 地址，仅测试使用。
func (g *PayPalGateway) SetBaseURL(u string) {
	g.baseURL = u
}

// Name 返回网关标识。
func (g *PayPalGateway) Name() string {
	return "paypal"
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateCheckout 创建一个 PayPal 订单，用户信息塞进 custom_id。
func (g *PayPalGateway) CreateCheckout(ctx context.Context, userID, plan, successURL, cancelURL string) (*CheckoutSession, error) {
	amount, ok := g.prices[plan]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id": userID + ":" + plan,
			"amount": map[string]string{
				"currency_code": "USD",
				"value":         amount,
			},
		}},
		"application_context": map[string]string{
			"return_url": successURL,
			"cancel_url": cancelURL,
		},
	}

	var order paypalOrder
	if err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	return &CheckoutSession{ID: order.ID, URL: approveURL}, nil
}

// VerifyCheckout 取回订单并核验完成状态。
func (g *PayPalGateway) VerifyCheckout(ctx context.Context, sessionID string) (*CheckoutResult, error) {
	var order paypalOrder
	err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(sessionID), nil, &order)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		SessionID: order.ID,
		Paid:      order.Status == "COMPLETED" || order.Status == "APPROVED",
	}
	if len(order.PurchaseUnits) > 0 {
		if parts := strings.SplitN(order.PurchaseUnits[0].CustomID, ":", 2); len(parts) == 2 {
			result.UserID = parts[0]
			result.Plan = parts[1]
		}
	}
	return result, nil
}

// Refund 对订单下的第一笔 capture 全额退款。
func (g *PayPalGateway) Refund(ctx context.Context, sessionID string) error {
	var order paypalOrder
	err := g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(sessionID), nil, &order)
	if err != nil {
		return err
	}
	if len(order.PurchaseUnits) == 0 || len(order.PurchaseUnits[0].Payments.Captures) == 0 {
		return fmt.Errorf("paypal: order %s has no capture to refund", sessionID)
	}

	captureID := order.PurchaseUnits[0].Payments.Captures[0].ID
	return g.do(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", struct{}{}, nil)
}

// token 返回可用的访问令牌，必要时重新获取。
func (g *PayPalGateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal: token request failed with status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}

	g.accessToken = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return g.accessToken, nil
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, payload, result any) error {
	accessToken, err := g.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode >= 400 {
		g.log.Warn("paypal api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("paypal: unexpected status %d", resp.StatusCode)
	}
	if result != nil {
		return json.Unmarshal(data, result)
	}
	return nil
}
