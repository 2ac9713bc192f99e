package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeGateway Stripe Checkout 的最小封装。
//
// 只用到两个端点：创建 Checkout Session 和按 ID 取回会话。
// 套餐到 Price 的映射来自配置，没有映射的套餐直接拒绝。
type StripeGateway struct {
	secretKey  string
	prices     map[string]string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewStripeGateway 创建 Stripe 网关。prices 是套餐名到 Price ID 的映射。
func NewStripeGateway(secretKey string, prices map[string]string, log *zap.Logger) *StripeGateway {
	return &StripeGateway{
		secretKey: secretKey,
		prices:    prices,
		baseURL:   stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: log,
	}
}

// SetBaseURL 覆盖 API 地址，仅测试使用。
func (g *StripeGateway) SetBaseURL(u string) {
	g.baseURL = u
}

// Name 返回网关标识。
func (g *StripeGateway) Name() string {
	return "stripe"
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	Metadata      struct {
		UserID string `json:"user_id"`
		Plan   string `json:"plan"`
	} `json:"metadata"`
}

// CreateCheckout 创建一个订阅模式的 Checkout Session。
func (g *StripeGateway) CreateCheckout(ctx context.Context, userID, plan, successURL, cancelURL string) (*CheckoutSession, error) {
	priceID, ok := g.prices[plan]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[user_id]", userID)
	form.Set("metadata[plan]", plan)

	var session stripeSession
	if err := g.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyCheckout 取回会话并核验支付状态。
func (g *StripeGateway) VerifyCheckout(ctx context.Context, sessionID string) (*CheckoutResult, error) {
	var session stripeSession
	err := g.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil, &session)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{
		SessionID: session.ID,
		Paid:      session.PaymentStatus == "paid",
		Plan:      session.Metadata.Plan,
		UserID:    session.Metadata.UserID,
	}, nil
}

// Refund 按会话全额退款。先取回会话拿到 PaymentIntent 再创建退款。
func (g *StripeGateway) Refund(ctx context.Context, sessionID string) error {
	var session struct {
		PaymentIntent string `json:"payment_intent"`
	}
	err := g.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil, &session)
	if err != nil {
		return err
	}
	if session.PaymentIntent == "" {
		return fmt.Errorf("stripe: session %s has no payment intent", sessionID)
	}

	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	var refund struct {
		ID string `json:"id"`
	}
	return g.do(ctx, http.MethodPost, "/refunds", form, &refund)
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, result any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

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
		g.log.Warn("stripe api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(data, result)
}
