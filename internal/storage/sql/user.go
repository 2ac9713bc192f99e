package sql

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// ========== UserRepository ==========

// CreateUser 创建用户，邮箱重复时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := s.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrEmailExists
		}
		return err
	}
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户。
func (s *Store) UpdateUser(user *domain.User) error {
	result := s.db.Save(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin 更新最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	return s.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now().UTC()).Error
}

// ========== SubscriptionRepository ==========

// SaveSubscription 保存订阅。
func (s *Store) SaveSubscription(sub *domain.Subscription) error {
	return s.db.Create(sub).Error
}

// GetSubscriptionByUserID 获取用户订阅。
func (s *Store) GetSubscriptionByUserID(userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription 更新订阅。
func (s *Store) UpdateSubscription(sub *domain.Subscription) error {
	return s.db.Save(sub).Error
}

// ========== CustomDomainRepository ==========

// SaveCustomDomain 保存自有域名，域名重复时返回 ErrDomainExists。
func (s *Store) SaveCustomDomain(cd *domain.CustomDomain) error {
	cd.Domain = strings.ToLower(cd.Domain)
	if err := s.db.Create(cd).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDomainExists
		}
		return err
	}
	return nil
}

// GetCustomDomain 根据 ID 获取自有域名。
func (s *Store) GetCustomDomain(id string) (*domain.CustomDomain, error) {
	var cd domain.CustomDomain
	err := s.db.Where("id = ?", id).First(&cd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrDomainNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cd, nil
}

// GetCustomDomainByDomain 根据域名获取自有域名。
func (s *Store) GetCustomDomainByDomain(name string) (*domain.CustomDomain, error) {
	var cd domain.CustomDomain
	err := s.db.Where("domain = ?", strings.ToLower(name)).First(&cd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrDomainNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cd, nil
}

// ListCustomDomainsByUserID 返回用户的全部自有域名。
func (s *Store) ListCustomDomainsByUserID(userID string) ([]*domain.CustomDomain, error) {
	var domains []*domain.CustomDomain
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&domains).Error
	return domains, err
}

// UpdateCustomDomain 更新自有域名。
func (s *Store) UpdateCustomDomain(cd *domain.CustomDomain) error {
	return s.db.Save(cd).Error
}

// DeleteCustomDomain 删除自有域名。
func (s *Store) DeleteCustomDomain(id string) error {
	result := s.db.Where("id = ?", id).Delete(&domain.CustomDomain{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrDomainNotFound
	}
	return nil
}

// ========== AdminRepository ==========

// ListUsers 分页返回用户列表。
func (s *Store) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.Model(&domain.User{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []domain.User
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	return users, int(total), err
}

// GetSystemStatistics 返回系统统计。
func (s *Store) GetSystemStatistics() (*domain.SystemStatistics, error) {
	now := time.Now().UTC()
	stats := &domain.SystemStatistics{UsersByTier: make(map[string]int)}

	var count int64
	if err := s.db.Model(&domain.User{}).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.TotalUsers = int(count)

	if err := s.db.Model(&domain.Mailbox{}).
		Where("is_active = ? AND expires_at > ?", true, now).
		Count(&count).Error; err != nil {
		return nil, err
	}
	stats.ActiveMailboxes = int(count)

	if err := s.db.Model(&domain.Message{}).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.TotalMessages = int(count)

	if err := s.db.Model(&domain.CustomDomain{}).Count(&count).Error; err != nil {
		return nil, err
	}
	stats.CustomDomains = int(count)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.db.Model(&domain.Message{}).
		Where("received_at >= ?", today).
		Count(&count).Error; err != nil {
		return nil, err
	}
	stats.MessagesToday = int(count)

	var tierRows []struct {
		PlanTier string
		Count    int
	}
	if err := s.db.Model(&domain.Subscription{}).
		Select("plan_tier, COUNT(*) as count").
		Group("plan_tier").
		Scan(&tierRows).Error; err != nil {
		return nil, err
	}
	for _, row := range tierRows {
		stats.UsersByTier[row.PlanTier] = row.Count
	}

	var storageBytes int64
	if err := s.db.Model(&domain.Attachment{}).
		Select("COALESCE(SUM(size), 0)").
		Scan(&storageBytes).Error; err != nil {
		return nil, err
	}
	stats.AttachmentStorage = storageBytes

	return stats, nil
}
