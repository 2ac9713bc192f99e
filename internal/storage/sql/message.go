package sql

import (
	"errors"

	"gorm.io/gorm"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// SaveMessage 保存邮件与其附件元数据（同一事务）。
func (s *Store) SaveMessage(message *domain.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		for i := range message.Attachments {
			message.Attachments[i].MessageID = message.ID
			message.Attachments[i].MailboxID = message.MailboxID
			if err := tx.Create(&message.Attachments[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMessage 获取单封邮件（含附件元数据）。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	atts, err := s.ListAttachments(message.ID)
	if err != nil {
		return nil, err
	}
	message.Attachments = atts
	return &message, nil
}

// ListMessages 返回收件箱全部邮件，按接收时间倒序。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.Where("mailbox_id = ?", mailboxID).
		Order("received_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i := range messages {
		atts, err := s.ListAttachments(messages[i].ID)
		if err != nil {
			return nil, err
		}
		messages[i].Attachments = atts
	}
	return messages, nil
}

// MarkMessageRead 标记邮件已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	result := s.db.Model(&domain.Message{}).
		Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// DeleteMessage 删除单封邮件及其附件元数据。
func (s *Store) DeleteMessage(mailboxID, messageID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
			Delete(&domain.Message{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrMessageNotFound
		}
		return tx.Where("message_id = ?", messageID).Delete(&domain.Attachment{}).Error
	})
}

// DeleteMessagesByMailbox 删除收件箱全部邮件，返回删除数量。
func (s *Store) DeleteMessagesByMailbox(mailboxID string) (int, error) {
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("mailbox_id = ?", mailboxID).Delete(&domain.Message{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return tx.Where("mailbox_id = ?", mailboxID).Delete(&domain.Attachment{}).Error
	})
	return int(deleted), err
}

// CountMessages 返回收件箱当前邮件数。
func (s *Store) CountMessages(mailboxID string) (int, error) {
	var count int64
	err := s.db.Model(&domain.Message{}).
		Where("mailbox_id = ?", mailboxID).
		Count(&count).Error
	return int(count), err
}

// OldestMessage 返回 receivedAt 最早的邮件。
func (s *Store) OldestMessage(mailboxID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.Where("mailbox_id = ?", mailboxID).
		Order("received_at ASC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	atts, err := s.ListAttachments(message.ID)
	if err != nil {
		return nil, err
	}
	message.Attachments = atts
	return &message, nil
}

// SumAttachmentBytes 返回收件箱下已存附件的字节总和。
func (s *Store) SumAttachmentBytes(mailboxID string) (int64, error) {
	var total int64
	err := s.db.Model(&domain.Attachment{}).
		Where("mailbox_id = ?", mailboxID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	return total, err
}

// ListAttachments 返回邮件的附件元数据。
func (s *Store) ListAttachments(messageID string) ([]domain.Attachment, error) {
	var atts []domain.Attachment
	err := s.db.Where("message_id = ?", messageID).Find(&atts).Error
	if err != nil {
		return nil, err
	}
	if len(atts) == 0 {
		return nil, nil
	}
	return atts, nil
}

// ListAttachmentsByMailbox 返回收件箱全部附件元数据，供清理任务使用。
func (s *Store) ListAttachmentsByMailbox(mailboxID string) ([]domain.Attachment, error) {
	var atts []domain.Attachment
	err := s.db.Where("mailbox_id = ?", mailboxID).Find(&atts).Error
	return atts, err
}
