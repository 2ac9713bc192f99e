package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
)

type cleanupFixture struct {
	svc     *CleanupService
	store   *memory.Store
	blobs   *fakeBlobStore
	current *time.Time
}

func newCleanupFixture(t *testing.T, at time.Time) *cleanupFixture {
	t.Helper()
	store := memory.NewStore()
	blobs := newFakeBlobStore()
	ratelimit := NewRateLimitService(store, zap.NewNop())
	svc := NewCleanupService(store, blobs, ratelimit, nil, zap.NewNop())

	current := at
	clock := func() time.Time { return current }
	svc.SetClock(clock)
	ratelimit.SetClock(clock)
	store.SetClock(clock)
	return &cleanupFixture{svc: svc, store: store, blobs: blobs, current: &current}
}

func (f *cleanupFixture) expiredMailbox(t *testing.T, id string, expiredAt time.Time) *domain.Mailbox {
	t.Helper()
	mailbox := &domain.Mailbox{
		ID:        id,
		Address:   id + "@tempinbox.io",
		PlanTier:  domain.TierStandard,
		IsActive:  true,
		CreatedAt: expiredAt.Add(-12 * time.Hour),
		ExpiresAt: expiredAt,
	}
	require.NoError(t, f.store.SaveMailbox(mailbox))
	return mailbox
}

func TestCleanupRun(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("回收过期邮箱及其邮件与附件", func(t *testing.T) {
		f := newCleanupFixture(t, base.Add(-time.Hour))
		mailbox := f.expiredMailbox(t, "dead", base.Add(-30*time.Minute))
		require.NoError(t, f.store.SaveMessage(&domain.Message{
			ID:         "msg-1",
			MailboxID:  mailbox.ID,
			ReceivedAt: base.Add(-time.Hour),
			Attachments: []domain.Attachment{
				{ID: "att-1", MessageID: "msg-1", MailboxID: mailbox.ID, Size: 10, DeleteHandle: "handle-1"},
			},
		}))
		require.NoError(t, f.store.SaveMessage(&domain.Message{
			ID:         "msg-2",
			MailboxID:  mailbox.ID,
			ReceivedAt: base.Add(-50 * time.Minute),
		}))

		*f.current = base
		stats := f.svc.Run(ctx)

		assert.Equal(t, 1, stats.MailboxesDeleted)
		assert.Equal(t, 2, stats.MessagesDeleted)
		assert.Equal(t, 1, stats.AttachmentsDeleted)
		assert.Equal(t, 0, stats.Failed)
		assert.Contains(t, f.blobs.deleted, "handle-1")

		_, err := f.store.GetMailboxByAddressAny(mailbox.Address)
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})

	t.Run("未过期邮箱不受影响", func(t *testing.T) {
		f := newCleanupFixture(t, base)
		alive := &domain.Mailbox{
			ID:        "alive",
			Address:   "alive@tempinbox.io",
			PlanTier:  domain.TierStandard,
			IsActive:  true,
			CreatedAt: base,
			ExpiresAt: base.Add(12 * time.Hour),
		}
		require.NoError(t, f.store.SaveMailbox(alive))

		stats := f.svc.Run(ctx)

		assert.Equal(t, 0, stats.MailboxesDeleted)
		_, err := f.store.GetMailbox("alive")
		assert.NoError(t, err)
	})

	t.Run("重复执行是空操作", func(t *testing.T) {
		f := newCleanupFixture(t, base.Add(-time.Hour))
		f.expiredMailbox(t, "dead", base.Add(-30*time.Minute))

		*f.current = base
		first := f.svc.Run(ctx)
		second := f.svc.Run(ctx)

		assert.Equal(t, 1, first.MailboxesDeleted)
		assert.Equal(t, 0, second.MailboxesDeleted)
		assert.Equal(t, 0, second.Failed)
	})

	t.Run("同时回收窗口外的生成记录", func(t *testing.T) {
		f := newCleanupFixture(t, base.Add(-2*time.Hour))
		require.NoError(t, f.store.SaveGeneration(&domain.GenerationRecord{
			ID:          "gen-1",
			IdentityKey: "ip:203.0.113.7",
			PlanTier:    domain.TierAnonymous,
			GeneratedAt: base.Add(-2 * time.Hour),
		}))

		*f.current = base
		stats := f.svc.Run(ctx)

		assert.Equal(t, 1, stats.GenerationsReaped)
	})
}
