package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/blob"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage/memory"
)

// fakeBlobStore 记录上传与删除调用的内存对象存储。
type fakeBlobStore struct {
	mu        sync.Mutex
	seq       int
	objects   map[string][]byte
	deleted   []string
	uploadErr error
	failAfter int // 前 N 次上传成功，之后返回 uploadErr
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte), failAfter: -1}
}

func (f *fakeBlobStore) Upload(_ context.Context, name, _ string, data []byte) (*blob.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil && (f.failAfter < 0 || f.seq >= f.failAfter) {
		return nil, f.uploadErr
	}
	f.seq++
	handle := fmt.Sprintf("obj-%d-%s", f.seq, name)
	f.objects[handle] = data
	return &blob.StoredObject{URL: "https://blobs.test/" + handle, DeleteHandle: handle}, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, handle)
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeBlobStore) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

type ingestFixture struct {
	svc     *IngestService
	store   *memory.Store
	blobs   *fakeBlobStore
	current *time.Time
}

func newIngestFixture(t *testing.T, at time.Time) *ingestFixture {
	t.Helper()
	store := memory.NewStore()
	blobs := newFakeBlobStore()
	subs := NewSubscriptionService(store, zap.NewNop())
	mailboxes := NewMailboxService(store, subs, blobs, nil, []string{"tempinbox.io"}, zap.NewNop())
	svc := NewIngestService(store, mailboxes, blobs, zap.NewNop())

	current := at
	clock := func() time.Time { return current }
	svc.SetClock(clock)
	mailboxes.SetClock(clock)
	subs.SetClock(clock)
	store.SetClock(clock)
	return &ingestFixture{svc: svc, store: store, blobs: blobs, current: &current}
}

func (f *ingestFixture) mailbox(t *testing.T, address string, tier domain.PlanTier, at time.Time) *domain.Mailbox {
	t.Helper()
	limits := domain.LimitsFor(tier)
	mailbox := &domain.Mailbox{
		ID:        "mb-" + address,
		Address:   address,
		LocalPart: address[:len(address)-len("@tempinbox.io")],
		Domain:    "tempinbox.io",
		SessionID: "sess-1",
		PlanTier:  tier,
		IsActive:  true,
		CreatedAt: at,
		ExpiresAt: at.Add(limits.MailboxExpiry),
	}
	require.NoError(t, f.store.SaveMailbox(mailbox))
	return mailbox
}

func (f *ingestFixture) seedMessages(t *testing.T, mailboxID string, count int, from time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, f.store.SaveMessage(&domain.Message{
			ID:         fmt.Sprintf("seed-%s-%d", mailboxID, i),
			MailboxID:  mailboxID,
			From:       "sender@example.com",
			Subject:    fmt.Sprintf("seed %d", i),
			ReceivedAt: from.Add(time.Duration(i) * time.Second),
		}))
	}
}

func inboundTo(address string) *domain.InboundEmail {
	return &domain.InboundEmail{
		To:       address,
		From:     "sender@example.com",
		Subject:  "hello",
		TextBody: "plain text",
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("缺少必要字段报错", func(t *testing.T) {
		f := newIngestFixture(t, base)

		_, err := f.svc.Ingest(ctx, &domain.InboundEmail{To: "a@tempinbox.io"})
		assert.ErrorIs(t, err, ErrInvalidInbound)

		_, err = f.svc.Ingest(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidInbound)
	})

	t.Run("未知地址返回NotFound结果", func(t *testing.T) {
		f := newIngestFixture(t, base)

		result, err := f.svc.Ingest(ctx, inboundTo("ghost@tempinbox.io"))

		require.NoError(t, err)
		assert.Equal(t, OutcomeMailboxNotFound, result.Outcome)
		assert.Nil(t, result.Message)
	})

	t.Run("正常入库并消毒HTML", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "inbox@tempinbox.io", domain.TierStandard, base)

		inbound := inboundTo(mailbox.Address)
		inbound.HTMLBody = `<p>hi</p><script>alert(1)</script>`

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		require.NotNil(t, result.Message)
		assert.Equal(t, "<p>hi</p>", result.Message.HTMLBody)
		// 套餐快照取自邮箱
		assert.Equal(t, domain.TierStandard, result.Message.PlanTier)

		count, err := f.store.CountMessages(mailbox.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("匿名邮箱满时软拒绝", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "anon@tempinbox.io", domain.TierAnonymous, base)
		f.seedMessages(t, mailbox.ID, 1, base)

		result, err := f.svc.Ingest(ctx, inboundTo(mailbox.Address))

		require.NoError(t, err)
		assert.Equal(t, OutcomeInboxFull, result.Outcome)
		assert.Equal(t, ReasonInboxFullNoFifo, result.Reason)

		// 已有邮件原封不动
		count, err := f.store.CountMessages(mailbox.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		_, err = f.store.GetMessage(mailbox.ID, "seed-"+mailbox.ID+"-0")
		assert.NoError(t, err)
	})

	t.Run("软拒绝不产生对象存储写入", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "anon@tempinbox.io", domain.TierAnonymous, base)
		f.seedMessages(t, mailbox.ID, 1, base)

		inbound := inboundTo(mailbox.Address)
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("data")},
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Equal(t, OutcomeInboxFull, result.Outcome)
		assert.Equal(t, 0, f.blobs.uploadCount())
	})

	t.Run("标准邮箱满时FIFO挤掉最旧", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)
		f.seedMessages(t, mailbox.ID, 20, base)

		result, err := f.svc.Ingest(ctx, inboundTo(mailbox.Address))

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Equal(t, 1, result.Evicted)

		// 挤占后数量保持在上限
		count, err := f.store.CountMessages(mailbox.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, count)

		// 最旧的一封已消失，新邮件在
		_, err = f.store.GetMessage(mailbox.ID, "seed-"+mailbox.ID+"-0")
		assert.Error(t, err)
		_, err = f.store.GetMessage(mailbox.ID, result.Message.ID)
		assert.NoError(t, err)
	})

	t.Run("降级积压时挤到刚好留出空位", func(t *testing.T) {
		f := newIngestFixture(t, base)
		// premium 邮箱攒了 30 封，所有者降级后邮箱续期成 standard（上限 20）
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)
		f.seedMessages(t, mailbox.ID, 30, base)

		result, err := f.svc.Ingest(ctx, inboundTo(mailbox.Address))

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Equal(t, 11, result.Evicted)

		count, err := f.store.CountMessages(mailbox.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, count)
	})

	t.Run("被挤占邮件的附件对象一并回收", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)
		require.NoError(t, f.store.SaveMessage(&domain.Message{
			ID:         "victim",
			MailboxID:  mailbox.ID,
			ReceivedAt: base,
			Attachments: []domain.Attachment{
				{ID: "att-1", MessageID: "victim", MailboxID: mailbox.ID, Size: 10, DeleteHandle: "victim-handle"},
			},
		}))
		f.seedMessages(t, mailbox.ID, 19, base.Add(time.Minute))

		result, err := f.svc.Ingest(ctx, inboundTo(mailbox.Address))

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Contains(t, f.blobs.deleted, "victim-handle")
	})
}

func TestIngestAttachments(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("预算内的附件上传并记录元数据", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)

		inbound := inboundTo(mailbox.Address)
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("aaaa")},
			{Filename: "b.png", ContentType: "image/png", Content: []byte("bbbb")},
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		require.Len(t, result.Message.Attachments, 2)
		assert.Equal(t, "a.pdf", result.Message.Attachments[0].Filename)
		assert.Equal(t, int64(4), result.Message.Attachments[0].Size)
		assert.NotEmpty(t, result.Message.Attachments[0].URL)
		assert.Equal(t, 2, f.blobs.uploadCount())

		total, err := f.store.SumAttachmentBytes(mailbox.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(8), total)
	})

	t.Run("超出预算整封丢弃附件但正文入库", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)

		inbound := inboundTo(mailbox.Address)
		// standard 预算 1 MiB
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "big.bin", Content: make([]byte, 1<<20+1)},
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Empty(t, result.Message.Attachments)
		assert.Equal(t, 0, f.blobs.uploadCount())
	})

	t.Run("预算计入收件箱已有附件", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)
		require.NoError(t, f.store.SaveMessage(&domain.Message{
			ID:         "existing",
			MailboxID:  mailbox.ID,
			ReceivedAt: base,
			Attachments: []domain.Attachment{
				{ID: "att-0", MessageID: "existing", MailboxID: mailbox.ID, Size: 1 << 19}, // 512 KiB 已用
			},
		}))

		inbound := inboundTo(mailbox.Address)
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "more.bin", Content: make([]byte, 1<<19+1)}, // 再来 512 KiB + 1
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Empty(t, result.Message.Attachments)
	})

	t.Run("free套餐不接收附件", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "free@tempinbox.io", domain.TierFree, base)

		inbound := inboundTo(mailbox.Address)
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "a.pdf", Content: []byte("data")},
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Empty(t, result.Message.Attachments)
		assert.Equal(t, 0, f.blobs.uploadCount())
	})

	t.Run("上传失败回退到无附件并回收已传对象", func(t *testing.T) {
		f := newIngestFixture(t, base)
		mailbox := f.mailbox(t, "std@tempinbox.io", domain.TierStandard, base)
		// 第一个附件成功，第二个失败
		f.blobs.uploadErr = errors.New("backend unavailable")
		f.blobs.failAfter = 1

		inbound := inboundTo(mailbox.Address)
		inbound.Attachments = []domain.InboundAttachment{
			{Filename: "a.pdf", Content: []byte("aaaa")},
			{Filename: "b.png", Content: []byte("bbbb")},
		}

		result, err := f.svc.Ingest(ctx, inbound)

		require.NoError(t, err)
		assert.Equal(t, OutcomeStored, result.Outcome)
		assert.Empty(t, result.Message.Attachments)
		// 已传的第一个对象被回收
		assert.Len(t, f.blobs.deleted, 1)
	})
}
