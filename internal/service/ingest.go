package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempinbox/backend/internal/blob"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/sanitize"
	"tempinbox/backend/internal/storage"
)

// ErrInvalidInbound 入站载荷缺少必要字段
var ErrInvalidInbound = errors.New("invalid inbound payload")

// attachmentUploadTimeout 单个附件上传的超时时间
const attachmentUploadTimeout = 30 * time.Second

// IngestOutcome 入站处理的结果分类。
type IngestOutcome string

const (
	// OutcomeStored 邮件已落库
	OutcomeStored IngestOutcome = "stored"
	// OutcomeMailboxNotFound 投递地址不存在或已过期
	OutcomeMailboxNotFound IngestOutcome = "mailbox_not_found"
	// OutcomeInboxFull 收件箱已满且套餐不允许挤占，邮件被软拒绝
	OutcomeInboxFull IngestOutcome = "inbox_full"
)

// ReasonInboxFullNoFifo 软拒绝的原因码，随响应体返回给投递方。
const ReasonInboxFullNoFifo = "INBOX_FULL_NO_FIFO"

// IngestResult 入站处理结果。软拒绝是预期内的业务结果，
// 不是 error：投递方拿到结果码后自行决定是否重试。
type IngestResult struct {
	Outcome IngestOutcome
	Reason  string
	Message *domain.Message
	// Evicted 本次为腾出空位被 FIFO 挤掉的旧邮件数
	Evicted int
}

// IngestService Webhook 入站管线：解析目标、容量准入、附件预算、
// HTML 消毒、落库。整条链路至多处理一次，不做幂等去重。
type IngestService struct {
	store     storage.Store
	mailboxes *MailboxService
	blobs     blob.Storage
	sanitizer *sanitize.Sanitizer
	log       *zap.Logger
	now       func() time.Time
}

// NewIngestService 创建入站服务。
func NewIngestService(store storage.Store, mailboxes *MailboxService, blobs blob.Storage, log *zap.Logger) *IngestService {
	return &IngestService{
		store:     store,
		mailboxes: mailboxes,
		blobs:     blobs,
		sanitizer: sanitize.NewSanitizer(),
		log:       log,
		now:       time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *IngestService) SetClock(now func() time.Time) {
	s.now = now
}

// Ingest 处理一封规范化后的入站邮件。
//
// 容量准入先于附件上传：软拒绝的邮件不产生任何对象存储写入。
// FIFO 挤占发生在写入之前，挤占后收件箱数量保持在上限不变。
func (s *IngestService) Ingest(ctx context.Context, inbound *domain.InboundEmail) (IngestResult, error) {
	if inbound == nil || inbound.To == "" || inbound.From == "" {
		return IngestResult{}, ErrInvalidInbound
	}

	mailbox, err := s.mailboxes.ResolveForIngestion(ctx, inbound.To)
	if errors.Is(err, storage.ErrMailboxNotFound) {
		s.log.Debug("inbound for unknown address", zap.String("to", inbound.To))
		return IngestResult{Outcome: OutcomeMailboxNotFound}, nil
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("resolve recipient: %w", err)
	}

	limits := domain.LimitsFor(mailbox.PlanTier)

	full, evicted, err := s.admitCapacity(ctx, mailbox, limits)
	if err != nil {
		return IngestResult{}, err
	}
	if full {
		return IngestResult{Outcome: OutcomeInboxFull, Reason: ReasonInboxFullNoFifo}, nil
	}

	attachments, err := s.admitAttachments(ctx, mailbox, limits, inbound.Attachments)
	if err != nil {
		return IngestResult{}, err
	}

	now := s.now().UTC()
	message := &domain.Message{
		ID:          uuid.NewString(),
		MailboxID:   mailbox.ID,
		From:        inbound.From,
		To:          inbound.To,
		Subject:     inbound.Subject,
		TextBody:    inbound.TextBody,
		HTMLBody:    s.sanitizer.HTML(inbound.HTMLBody),
		MessageID:   inbound.MessageID,
		InReplyTo:   inbound.InReplyTo,
		References:  inbound.References,
		PlanTier:    mailbox.PlanTier,
		ReceivedAt:  now,
		Attachments: attachments,
	}

	if err := s.store.SaveMessage(message); err != nil {
		// 落库失败时回收已上传的附件对象，避免孤儿
		s.cleanupUploaded(ctx, attachments)
		return IngestResult{}, fmt.Errorf("save message: %w", err)
	}

	s.log.Info("message ingested",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("to", inbound.To),
		zap.Int("attachments", len(attachments)),
	)
	return IngestResult{Outcome: OutcomeStored, Message: message, Evicted: evicted}, nil
}

// admitCapacity 执行容量准入。返回 full=true 表示软拒绝，
// evicted 是为腾位挤掉的旧邮件数。
//
// 收件箱满时：允许 FIFO 的套餐挤掉最旧一封（含其附件对象），
// 不允许的直接软拒绝，已有邮件原封不动。
func (s *IngestService) admitCapacity(ctx context.Context, mailbox *domain.Mailbox, limits domain.PlanLimits) (full bool, evicted int, err error) {
	count, err := s.store.CountMessages(mailbox.ID)
	if err != nil {
		return false, 0, fmt.Errorf("count messages: %w", err)
	}
	if count < limits.MaxInboxMessages {
		return false, 0, nil
	}
	if !limits.AllowsFifoEviction {
		s.log.Debug("inbox full without eviction",
			zap.String("mailbox_id", mailbox.ID),
			zap.Int("count", count),
		)
		return true, 0, nil
	}

	// 可能积压多封（套餐降级后上限变小），循环挤到刚好留出一个空位
	for count >= limits.MaxInboxMessages {
		oldest, err := s.store.OldestMessage(mailbox.ID)
		if errors.Is(err, storage.ErrMessageNotFound) {
			break
		}
		if err != nil {
			return false, evicted, fmt.Errorf("oldest message: %w", err)
		}
		if err := s.evict(ctx, mailbox.ID, oldest); err != nil {
			return false, evicted, err
		}
		evicted++
		count--
	}
	return false, evicted, nil
}

// evict 删除一封被挤占的邮件及其附件对象。
func (s *IngestService) evict(ctx context.Context, mailboxID string, message *domain.Message) error {
	attachments, err := s.store.ListAttachments(message.ID)
	if err != nil {
		return fmt.Errorf("list evicted attachments: %w", err)
	}
	if s.blobs != nil {
		for _, att := range attachments {
			if att.DeleteHandle == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, att.DeleteHandle); err != nil {
				s.log.Warn("evicted attachment blob delete failed",
					zap.String("attachment_id", att.ID),
					zap.Error(err),
				)
			}
		}
	}
	if err := s.store.DeleteMessage(mailboxID, message.ID); err != nil {
		return fmt.Errorf("evict oldest message: %w", err)
	}
	s.log.Debug("oldest message evicted",
		zap.String("mailbox_id", mailboxID),
		zap.String("message_id", message.ID),
	)
	return nil
}

// admitAttachments 执行附件预算准入并上传。
//
// 预算按整封邮件一次判定：全部附件加上收件箱已有附件的总字节数
// 超出套餐预算时，整封邮件的附件全部丢弃，正文照常入库。
// 任意一个附件上传失败同样回退到无附件，已传的对象立即回收。
func (s *IngestService) admitAttachments(ctx context.Context, mailbox *domain.Mailbox, limits domain.PlanLimits, inbound []domain.InboundAttachment) ([]domain.Attachment, error) {
	if len(inbound) == 0 {
		return nil, nil
	}
	if !limits.AllowsAttachments || limits.MaxAttachmentBytes == 0 || s.blobs == nil {
		s.log.Debug("attachments dropped by plan",
			zap.String("mailbox_id", mailbox.ID),
			zap.Int("count", len(inbound)),
		)
		return nil, nil
	}

	var incoming int64
	for _, att := range inbound {
		incoming += int64(len(att.Content))
	}
	used, err := s.store.SumAttachmentBytes(mailbox.ID)
	if err != nil {
		return nil, fmt.Errorf("sum attachment bytes: %w", err)
	}
	if used+incoming > limits.MaxAttachmentBytes {
		s.log.Debug("attachments dropped by budget",
			zap.String("mailbox_id", mailbox.ID),
			zap.Int64("used", used),
			zap.Int64("incoming", incoming),
			zap.Int64("budget", limits.MaxAttachmentBytes),
		)
		return nil, nil
	}

	now := s.now().UTC()
	stored := make([]domain.Attachment, 0, len(inbound))
	for _, att := range inbound {
		object, err := s.uploadOne(ctx, att)
		if err != nil {
			s.log.Warn("attachment upload failed, dropping all",
				zap.String("mailbox_id", mailbox.ID),
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			s.cleanupUploaded(ctx, stored)
			return nil, nil
		}
		stored = append(stored, domain.Attachment{
			ID:           uuid.NewString(),
			MailboxID:    mailbox.ID,
			Filename:     att.Filename,
			ContentType:  att.ContentType,
			Size:         int64(len(att.Content)),
			URL:          object.URL,
			DeleteHandle: object.DeleteHandle,
			CreatedAt:    now,
		})
	}
	return stored, nil
}

func (s *IngestService) uploadOne(ctx context.Context, att domain.InboundAttachment) (*blob.StoredObject, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, attachmentUploadTimeout)
	defer cancel()
	return s.blobs.Upload(uploadCtx, att.Filename, att.ContentType, att.Content)
}

// cleanupUploaded 回收本次已上传但不再需要的附件对象。
func (s *IngestService) cleanupUploaded(ctx context.Context, attachments []domain.Attachment) {
	if s.blobs == nil {
		return
	}
	for _, att := range attachments {
		if att.DeleteHandle == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, att.DeleteHandle); err != nil {
			s.log.Warn("uploaded attachment cleanup failed",
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
		}
	}
}
