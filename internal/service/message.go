package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tempinbox/backend/internal/blob"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// MessageService 单封邮件的读取与管理操作。
//
// 访问控制复用邮箱的可见性规则：能看到邮箱就能看到里面的邮件。
type MessageService struct {
	store     storage.Store
	mailboxes *MailboxService
	blobs     blob.Storage
	log       *zap.Logger
}

// NewMessageService 创建邮件服务。
func NewMessageService(store storage.Store, mailboxes *MailboxService, blobs blob.Storage, log *zap.Logger) *MessageService {
	return &MessageService{
		store:     store,
		mailboxes: mailboxes,
		blobs:     blobs,
		log:       log,
	}
}

// resolveAccessible 按地址解析邮箱并完成访问控制。
func (s *MessageService) resolveAccessible(identity domain.Identity, address string) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailboxByAddress(strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		return nil, err
	}
	if !s.mailboxes.CanAccess(identity, mailbox) {
		return nil, ErrForbidden
	}
	return mailbox, nil
}

// Get 读取单封邮件。
func (s *MessageService) Get(identity domain.Identity, address, messageID string) (*domain.Message, error) {
	mailbox, err := s.resolveAccessible(identity, address)
	if err != nil {
		return nil, err
	}
	return s.store.GetMessage(mailbox.ID, messageID)
}

// MarkRead 将邮件标记为已读。
func (s *MessageService) MarkRead(identity domain.Identity, address, messageID string) error {
	mailbox, err := s.resolveAccessible(identity, address)
	if err != nil {
		return err
	}
	return s.store.MarkMessageRead(mailbox.ID, messageID)
}

// Delete 删除单封邮件及其附件对象。
func (s *MessageService) Delete(ctx context.Context, identity domain.Identity, address, messageID string) error {
	mailbox, err := s.resolveAccessible(identity, address)
	if err != nil {
		return err
	}

	// 先确认邮件确实属于该邮箱，再动它的附件对象：
	// 拿别的邮箱的邮件 ID 过来，在这里就会被挡下
	message, err := s.store.GetMessage(mailbox.ID, messageID)
	if err != nil {
		return err
	}
	if s.blobs != nil {
		for _, att := range message.Attachments {
			if att.DeleteHandle == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, att.DeleteHandle); err != nil {
				s.log.Warn("attachment blob delete failed",
					zap.String("attachment_id", att.ID),
					zap.Error(err),
				)
			}
		}
	}
	return s.store.DeleteMessage(mailbox.ID, messageID)
}
