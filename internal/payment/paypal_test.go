package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// paypalStub 模拟 token 端点和订单端点，统计 token 请求次数。
type paypalStub struct {
	tokenRequests int
	orders        http.HandlerFunc
}

func (s *paypalStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			s.tokenRequests++
			user, _, ok := r.BasicAuth()
			if !ok || user != "client-id" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token-1",
				"expires_in":   3600,
			})
			return
		}
		s.orders(w, r)
	}
}

func newTestPayPal(t *testing.T, stub *paypalStub) *PayPalGateway {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	gateway := NewPayPalGateway("client-id", "client-secret",
		map[string]string{"standard": "4.99", "premium": "9.99"}, true, zap.NewNop())
	gateway.SetBaseURL(server.URL)
	return gateway
}

func TestPayPalCreateCheckout(t *testing.T) {
	t.Run("创建订单返回approve链接", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "CAPTURE", payload["intent"])

			json.NewEncoder(w).Encode(map[string]any{
				"id":     "order-1",
				"status": "CREATED",
				"links": []map[string]string{
					{"rel": "self", "href": "https://api.sandbox.paypal.com/order-1"},
					{"rel": "approve", "href": "https://paypal.com/approve/order-1"},
				},
			})
		}}
		gateway := newTestPayPal(t, stub)

		session, err := gateway.CreateCheckout(context.Background(),
			"user-1", "premium", "https://app/success", "https://app/cancel")

		require.NoError(t, err)
		assert.Equal(t, "order-1", session.ID)
		assert.Equal(t, "https://paypal.com/approve/order-1", session.URL)
	})

	t.Run("未配置价格的套餐拒绝", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		}}
		gateway := newTestPayPal(t, stub)

		_, err := gateway.CreateCheckout(context.Background(),
			"user-1", "platinum", "https://app/success", "https://app/cancel")

		assert.ErrorIs(t, err, ErrUnknownPlan)
		assert.Equal(t, 0, stub.tokenRequests)
	})
}

func TestPayPalVerifyCheckout(t *testing.T) {
	t.Run("完成的订单解出custom_id", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/checkout/orders/order-1", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"id":             "order-1",
				"status":         "COMPLETED",
				"purchase_units": []map[string]string{{"custom_id": "user-1:standard"}},
			})
		}}
		gateway := newTestPayPal(t, stub)

		result, err := gateway.VerifyCheckout(context.Background(), "order-1")

		require.NoError(t, err)
		assert.True(t, result.Paid)
		assert.Equal(t, "user-1", result.UserID)
		assert.Equal(t, "standard", result.Plan)
	})

	t.Run("订单不存在", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}}
		gateway := newTestPayPal(t, stub)

		_, err := gateway.VerifyCheckout(context.Background(), "order-missing")

		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("按订单的capture退款", func(t *testing.T) {
		var refunded string
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/v2/checkout/orders/order-1":
				json.NewEncoder(w).Encode(map[string]any{
					"id":     "order-1",
					"status": "COMPLETED",
					"purchase_units": []map[string]any{{
						"custom_id": "user-1:standard",
						"payments": map[string]any{
							"captures": []map[string]string{{"id": "cap-1"}},
						},
					}},
				})
			case r.Method == http.MethodPost:
				refunded = r.URL.Path
				json.NewEncoder(w).Encode(map[string]any{"id": "refund-1"})
			default:
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
		}}
		gateway := newTestPayPal(t, stub)

		require.NoError(t, gateway.Refund(context.Background(), "order-1"))
		assert.Equal(t, "/v2/payments/captures/cap-1/refund", refunded)
	})

	t.Run("没有capture的订单无法退款", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": "order-1", "status": "CREATED"})
		}}
		gateway := newTestPayPal(t, stub)

		err := gateway.Refund(context.Background(), "order-1")

		assert.ErrorContains(t, err, "no capture to refund")
	})

	t.Run("访问令牌在有效期内复用", func(t *testing.T) {
		stub := &paypalStub{orders: func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": "order-1", "status": "CREATED"})
		}}
		gateway := newTestPayPal(t, stub)

		_, err := gateway.VerifyCheckout(context.Background(), "order-1")
		require.NoError(t, err)
		_, err = gateway.VerifyCheckout(context.Background(), "order-1")
		require.NoError(t, err)

		assert.Equal(t, 1, stub.tokenRequests)
	})
}
