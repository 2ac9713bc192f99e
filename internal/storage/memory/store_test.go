package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

func fixedStore(at time.Time) (*Store, *time.Time) {
	store := NewStore()
	current := at
	store.SetClock(func() time.Time { return current })
	return store, &current
}

func mailboxAt(id, address string, expiresAt time.Time) *domain.Mailbox {
	return &domain.Mailbox{
		ID:        id,
		Address:   address,
		PlanTier:  domain.TierAnonymous,
		IsActive:  true,
		ExpiresAt: expiresAt,
	}
}

func TestMailboxStorage(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("地址被活跃邮箱占用时冲突", func(t *testing.T) {
		store, _ := fixedStore(base)
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-1", "a@tempinbox.io", base.Add(time.Hour))))

		err := store.SaveMailbox(mailboxAt("mb-2", "A@tempinbox.io", base.Add(time.Hour)))

		assert.ErrorIs(t, err, storage.ErrAddressTaken)
	})

	t.Run("过期占位地址允许复用", func(t *testing.T) {
		store, current := fixedStore(base)
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-1", "a@tempinbox.io", base.Add(10*time.Minute))))

		*current = base.Add(11 * time.Minute)
		err := store.SaveMailbox(mailboxAt("mb-2", "a@tempinbox.io", base.Add(2*time.Hour)))

		require.NoError(t, err)
		got, err := store.GetMailboxByAddress("a@tempinbox.io")
		require.NoError(t, err)
		assert.Equal(t, "mb-2", got.ID)
	})

	t.Run("过期邮箱读取路径不可见", func(t *testing.T) {
		store, current := fixedStore(base)
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-1", "a@tempinbox.io", base.Add(10*time.Minute))))

		*current = base.Add(11 * time.Minute)

		_, err := store.GetMailbox("mb-1")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
		_, err = store.GetMailboxByAddress("a@tempinbox.io")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

		// Any 变体仍可取到，供 404/410 区分
		got, err := store.GetMailboxByAddressAny("a@tempinbox.io")
		require.NoError(t, err)
		assert.Equal(t, "mb-1", got.ID)
	})

	t.Run("按过期时间批量列出", func(t *testing.T) {
		store, _ := fixedStore(base)
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-1", "a@tempinbox.io", base.Add(-2*time.Hour))))
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-2", "b@tempinbox.io", base.Add(-time.Hour))))
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-3", "c@tempinbox.io", base.Add(time.Hour))))

		expired, err := store.ListExpiredMailboxes(base, 10)
		require.NoError(t, err)
		assert.Len(t, expired, 2)

		limited, err := store.ListExpiredMailboxes(base, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestMessageStorage(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) *Store {
		t.Helper()
		store, _ := fixedStore(base)
		require.NoError(t, store.SaveMailbox(mailboxAt("mb-1", "a@tempinbox.io", base.Add(time.Hour))))
		return store
	}

	t.Run("邮件按接收时间倒序列出", func(t *testing.T) {
		store := seed(t)
		for i, id := range []string{"msg-1", "msg-2", "msg-3"} {
			require.NoError(t, store.SaveMessage(&domain.Message{
				ID:         id,
				MailboxID:  "mb-1",
				ReceivedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		list, err := store.ListMessages("mb-1")

		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "msg-3", list[0].ID)
		assert.Equal(t, "msg-1", list[2].ID)
	})

	t.Run("最旧邮件查询", func(t *testing.T) {
		store := seed(t)
		_, err := store.OldestMessage("mb-1")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)

		require.NoError(t, store.SaveMessage(&domain.Message{ID: "new", MailboxID: "mb-1", ReceivedAt: base.Add(time.Minute)}))
		require.NoError(t, store.SaveMessage(&domain.Message{ID: "old", MailboxID: "mb-1", ReceivedAt: base}))

		oldest, err := store.OldestMessage("mb-1")
		require.NoError(t, err)
		assert.Equal(t, "old", oldest.ID)
	})

	t.Run("附件字节数汇总", func(t *testing.T) {
		store := seed(t)
		require.NoError(t, store.SaveMessage(&domain.Message{
			ID:         "msg-1",
			MailboxID:  "mb-1",
			ReceivedAt: base,
			Attachments: []domain.Attachment{
				{ID: "att-1", MessageID: "msg-1", MailboxID: "mb-1", Size: 100},
				{ID: "att-2", MessageID: "msg-1", MailboxID: "mb-1", Size: 200},
			},
		}))

		total, err := store.SumAttachmentBytes("mb-1")
		require.NoError(t, err)
		assert.Equal(t, int64(300), total)

		// 删除邮件后附件随之消失
		require.NoError(t, store.DeleteMessage("mb-1", "msg-1"))
		total, err = store.SumAttachmentBytes("mb-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("标记已读", func(t *testing.T) {
		store := seed(t)
		require.NoError(t, store.SaveMessage(&domain.Message{ID: "msg-1", MailboxID: "mb-1", ReceivedAt: base}))

		require.NoError(t, store.MarkMessageRead("mb-1", "msg-1"))

		got, err := store.GetMessage("mb-1", "msg-1")
		require.NoError(t, err)
		assert.True(t, got.IsRead)
	})

	t.Run("删除邮箱级联清除邮件", func(t *testing.T) {
		store := seed(t)
		require.NoError(t, store.SaveMessage(&domain.Message{ID: "msg-1", MailboxID: "mb-1", ReceivedAt: base}))

		require.NoError(t, store.DeleteMailbox("mb-1"))

		count, err := store.CountMessages("mb-1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestBlacklistStorage(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("黑名单条目随TTL过期", func(t *testing.T) {
		store, current := fixedStore(base)
		require.NoError(t, store.AddToBlacklist("jti-1", 15*time.Minute))

		revoked, err := store.IsBlacklisted("jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		*current = base.Add(16 * time.Minute)
		revoked, err = store.IsBlacklisted("jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("未知jti不在黑名单", func(t *testing.T) {
		store, _ := fixedStore(base)

		revoked, err := store.IsBlacklisted("unknown")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestUserListing(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("分页与搜索", func(t *testing.T) {
		store, _ := fixedStore(base)
		require.NoError(t, store.CreateUser(&domain.User{ID: "u1", Email: "alice@example.com", Username: "alice"}))
		require.NoError(t, store.CreateUser(&domain.User{ID: "u2", Email: "bob@example.com", Username: "bob"}))
		require.NoError(t, store.CreateUser(&domain.User{ID: "u3", Email: "carol@example.com", Username: "carol"}))

		page, total, err := store.ListUsers(1, 2, "")
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 2)

		matched, total, err := store.ListUsers(1, 10, "ali")
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, matched, 1)
		assert.Equal(t, "alice", matched[0].Username)
	})

	t.Run("重复邮箱拒绝", func(t *testing.T) {
		store, _ := fixedStore(base)
		require.NoError(t, store.CreateUser(&domain.User{ID: "u1", Email: "alice@example.com"}))

		err := store.CreateUser(&domain.User{ID: "u2", Email: "Alice@Example.com"})

		assert.ErrorIs(t, err, storage.ErrEmailExists)
	})
}
