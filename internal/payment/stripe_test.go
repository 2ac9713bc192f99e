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

func newTestStripe(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gateway := NewStripeGateway("sk_test_123", map[string]string{
		"standard": "price_std",
		"premium":  "price_prm",
	}, zap.NewNop())
	gateway.SetBaseURL(server.URL)
	return gateway
}

func TestStripeCreateCheckout(t *testing.T) {
	t.Run("创建会话返回跳转链接", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/checkout/sessions", r.URL.Path)
			assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "subscription", r.PostForm.Get("mode"))
			assert.Equal(t, "price_std", r.PostForm.Get("line_items[0][price]"))
			assert.Equal(t, "user-1", r.PostForm.Get("metadata[user_id]"))
			assert.Equal(t, "standard", r.PostForm.Get("metadata[plan]"))

			json.NewEncoder(w).Encode(map[string]any{
				"id":  "cs_test_1",
				"url": "https://checkout.stripe.com/pay/cs_test_1",
			})
		})

		session, err := gateway.CreateCheckout(context.Background(),
			"user-1", "standard", "https://app/success", "https://app/cancel")

		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", session.ID)
		assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", session.URL)
	})

	t.Run("未配置价格的套餐拒绝", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		_, err := gateway.CreateCheckout(context.Background(),
			"user-1", "platinum", "https://app/success", "https://app/cancel")

		assert.ErrorIs(t, err, ErrUnknownPlan)
	})
}

func TestStripeVerifyCheckout(t *testing.T) {
	t.Run("已支付会话带回套餐与用户", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/checkout/sessions/cs_test_1", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"id":             "cs_test_1",
				"payment_status": "paid",
				"metadata":       map[string]string{"user_id": "user-1", "plan": "premium"},
			})
		})

		result, err := gateway.VerifyCheckout(context.Background(), "cs_test_1")

		require.NoError(t, err)
		assert.True(t, result.Paid)
		assert.Equal(t, "premium", result.Plan)
		assert.Equal(t, "user-1", result.UserID)
	})

	t.Run("未支付会话Paid为false", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"id":             "cs_test_1",
				"payment_status": "unpaid",
			})
		})

		result, err := gateway.VerifyCheckout(context.Background(), "cs_test_1")

		require.NoError(t, err)
		assert.False(t, result.Paid)
	})

	t.Run("会话不存在", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := gateway.VerifyCheckout(context.Background(), "cs_missing")

		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestStripeRefund(t *testing.T) {
	t.Run("按会话的PaymentIntent退款", func(t *testing.T) {
		var refundIntent string
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/checkout/sessions/cs_test_1":
				json.NewEncoder(w).Encode(map[string]any{"payment_intent": "pi_1"})
			case "/refunds":
				require.NoError(t, r.ParseForm())
				refundIntent = r.PostForm.Get("payment_intent")
				json.NewEncoder(w).Encode(map[string]any{"id": "re_1"})
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		})

		require.NoError(t, gateway.Refund(context.Background(), "cs_test_1"))
		assert.Equal(t, "pi_1", refundIntent)
	})

	t.Run("会话没有PaymentIntent时报错", func(t *testing.T) {
		gateway := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{})
		})

		err := gateway.Refund(context.Background(), "cs_test_1")

		assert.ErrorContains(t, err, "no payment intent")
	})
}
