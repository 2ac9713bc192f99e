package sql

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// SaveMailbox 保存邮箱。
//
// 地址唯一性由唯一索引保证：两个并发创建者抢同一个地址时，
// 后写入的一方拿到 ErrAddressTaken，而不是应用层 check-then-insert。
// 已过期的占位行会先被清掉以允许地址复用。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	address := strings.ToLower(mailbox.Address)
	mailbox.Address = address

	// 过期占位行允许地址复用
	s.db.Where("address = ? AND expires_at <= ?", address, time.Now().UTC()).
		Delete(&domain.Mailbox{})

	if err := s.db.Create(mailbox).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrAddressTaken
		}
		return err
	}
	return nil
}

// GetMailbox 根据 ID 获取未过期邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("id = ? AND expires_at > ?", id, time.Now().UTC()).
		First(&mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据地址获取未过期邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("address = ? AND expires_at > ?", strings.ToLower(address), time.Now().UTC()).
		First(&mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddressAny 根据地址获取邮箱，包含已过期的。
func (s *Store) GetMailboxByAddressAny(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("address = ?", strings.ToLower(address)).First(&mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// UpdateMailbox 更新邮箱。
func (s *Store) UpdateMailbox(mailbox *domain.Mailbox) error {
	result := s.db.Model(&domain.Mailbox{}).
		Where("id = ?", mailbox.ID).
		Select("expires_at", "is_active", "plan_tier").
		Updates(mailbox)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// DeleteMailbox 物理删除邮箱（过期邮箱同样可删）。
func (s *Store) DeleteMailbox(id string) error {
	result := s.db.Where("id = ?", id).Delete(&domain.Mailbox{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ListMailboxesByUserID 返回用户的全部未过期邮箱。
func (s *Store) ListMailboxesByUserID(userID string) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now().UTC()).
		Order("created_at DESC").
		Find(&mailboxes).Error
	return mailboxes, err
}

// ListMailboxesByAnonOwner 按 sessionID 或 IP 任一匹配返回匿名邮箱。
func (s *Store) ListMailboxesByAnonOwner(sessionID, ipAddress string) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	query := s.db.
		Where("user_id IS NULL AND is_active = ? AND expires_at > ?", true, time.Now().UTC())

	switch {
	case sessionID != "" && ipAddress != "":
		query = query.Where("session_id = ? OR ip_address = ?", sessionID, ipAddress)
	case sessionID != "":
		query = query.Where("session_id = ?", sessionID)
	case ipAddress != "":
		query = query.Where("ip_address = ?", ipAddress)
	default:
		return []domain.Mailbox{}, nil
	}

	err := query.Order("created_at DESC").Find(&mailboxes).Error
	return mailboxes, err
}

// ListExpiredMailboxes 返回已过期的邮箱，供清理任务使用。
func (s *Store) ListExpiredMailboxes(before time.Time, limit int) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	query := s.db.Where("expires_at < ?", before)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&mailboxes).Error
	return mailboxes, err
}
