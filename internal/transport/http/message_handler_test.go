package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/middleware"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/storage/memory"
)

func newInboxRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()
	subs := service.NewSubscriptionService(store, log)
	mailboxes := service.NewMailboxService(store, subs, nil, nil, []string{"tempinbox.io"}, log)
	messages := service.NewMessageService(store, mailboxes, nil, log)
	handler := NewMessageHandler(mailboxes, messages, log)

	router := gin.New()
	router.GET("/api/emails/:emailAddress", middleware.ResolveIdentity(), handler.Inbox)
	return router, store
}

func TestInbox(t *testing.T) {
	t.Run("返回邮件列表与附件占用", func(t *testing.T) {
		router, store := newInboxRouter(t)
		now := time.Now().UTC()
		require.NoError(t, store.SaveMailbox(&domain.Mailbox{
			ID:        "mb-1",
			Address:   "open@tempinbox.io",
			SessionID: "sess-1",
			PlanTier:  domain.TierAnonymous,
			IsActive:  true,
			CreatedAt: now,
			ExpiresAt: now.Add(10 * time.Minute),
		}))
		require.NoError(t, store.SaveMessage(&domain.Message{
			ID:         "msg-1",
			MailboxID:  "mb-1",
			ReceivedAt: now,
			Attachments: []domain.Attachment{
				{ID: "att-1", MessageID: "msg-1", MailboxID: "mb-1", Size: 123},
			},
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/emails/open@tempinbox.io", nil)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		var reply Response
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &reply))
		data, ok := reply.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), data["count"])

		storage, ok := data["storage"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(123), storage["attachmentBytesUsed"])
		limits := domain.LimitsFor(domain.TierAnonymous)
		assert.Equal(t, float64(limits.MaxAttachmentBytes), storage["maxAttachmentBytes"])
	})

	t.Run("未知地址404且过期地址410", func(t *testing.T) {
		router, store := newInboxRouter(t)
		now := time.Now().UTC()
		require.NoError(t, store.SaveMailbox(&domain.Mailbox{
			ID:        "mb-old",
			Address:   "stale@tempinbox.io",
			SessionID: "sess-1",
			PlanTier:  domain.TierAnonymous,
			IsActive:  true,
			CreatedAt: now.Add(-time.Hour),
			ExpiresAt: now.Add(-time.Minute),
		}))

		unknown := httptest.NewRecorder()
		router.ServeHTTP(unknown, httptest.NewRequest(http.MethodGet, "/api/emails/ghost@tempinbox.io", nil))
		assert.Equal(t, http.StatusNotFound, unknown.Code)

		expired := httptest.NewRecorder()
		router.ServeHTTP(expired, httptest.NewRequest(http.MethodGet, "/api/emails/stale@tempinbox.io", nil))
		assert.Equal(t, http.StatusGone, expired.Code)
	})
}
