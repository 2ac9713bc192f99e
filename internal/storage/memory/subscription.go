package memory

import (
	"strings"
	"time"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// ========== SubscriptionRepository ==========

// SaveSubscription 保存订阅。
func (s *Store) SaveSubscription(sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *sub
	s.subscriptions[sub.UserID] = &clone
	return nil
}

// GetSubscriptionByUserID 获取用户订阅。
func (s *Store) GetSubscriptionByUserID(userID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, storage.ErrSubscriptionNotFound
	}
	clone := *sub
	return &clone, nil
}

// UpdateSubscription 更新订阅。
func (s *Store) UpdateSubscription(sub *domain.Subscription) error {
	return s.SaveSubscription(sub)
}

// ========== CustomDomainRepository ==========

// SaveCustomDomain 保存自有域名，域名重复时返回 ErrDomainExists。
func (s *Store) SaveCustomDomain(cd *domain.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToLower(cd.Domain)
	if _, ok := s.byDomain[name]; ok {
		return storage.ErrDomainExists
	}
	clone := *cd
	s.customDomains[cd.ID] = &clone
	s.byDomain[name] = cd.ID
	return nil
}

// GetCustomDomain 根据 ID 获取自有域名。
func (s *Store) GetCustomDomain(id string) (*domain.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cd, ok := s.customDomains[id]
	if !ok {
		return nil, storage.ErrDomainNotFound
	}
	clone := *cd
	return &clone, nil
}

// GetCustomDomainByDomain 根据域名获取自有域名。
func (s *Store) GetCustomDomainByDomain(name string) (*domain.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDomain[strings.ToLower(name)]
	if !ok {
		return nil, storage.ErrDomainNotFound
	}
	clone := *s.customDomains[id]
	return &clone, nil
}

// ListCustomDomainsByUserID 返回用户的全部自有域名。
func (s *Store) ListCustomDomainsByUserID(userID string) ([]*domain.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CustomDomain, 0)
	for _, cd := range s.customDomains {
		if cd.UserID == userID {
			clone := *cd
			out = append(out, &clone)
		}
	}
	return out, nil
}

// UpdateCustomDomain 更新自有域名。
func (s *Store) UpdateCustomDomain(cd *domain.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customDomains[cd.ID]; !ok {
		return storage.ErrDomainNotFound
	}
	clone := *cd
	s.customDomains[cd.ID] = &clone
	s.byDomain[strings.ToLower(cd.Domain)] = cd.ID
	return nil
}

// DeleteCustomDomain 删除自有域名。
func (s *Store) DeleteCustomDomain(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.customDomains[id]
	if !ok {
		return storage.ErrDomainNotFound
	}
	delete(s.byDomain, strings.ToLower(cd.Domain))
	delete(s.customDomains, id)
	return nil
}

// ========== UserRepository ==========

// CreateUser 创建用户，邮箱重复时返回 ErrEmailExists。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return storage.ErrEmailExists
	}
	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

// UpdateUser 更新用户。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

// UpdateLastLogin 更新最近登录时间。
func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := s.now()
	user.LastLoginAt = &now
	return nil
}

// ========== AdminRepository ==========

// ListUsers 分页返回用户列表。
func (s *Store) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.User, 0)
	search = strings.ToLower(search)
	for _, user := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Email), search) &&
			!strings.Contains(strings.ToLower(user.Username), search) {
			continue
		}
		matched = append(matched, *user)
	}

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.User{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// GetSystemStatistics 返回系统统计。
func (s *Store) GetSystemStatistics() (*domain.SystemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := &domain.SystemStatistics{
		TotalUsers:    len(s.users),
		CustomDomains: len(s.customDomains),
		UsersByTier:   make(map[string]int),
	}
	for _, sub := range s.subscriptions {
		stats.UsersByTier[string(sub.PlanTier)]++
	}
	for _, mailbox := range s.mailboxes {
		if !mailbox.Expired(now) && mailbox.IsActive {
			stats.ActiveMailboxes++
		}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, box := range s.messages {
		stats.TotalMessages += len(box)
		for _, message := range box {
			if !message.ReceivedAt.Before(today) {
				stats.MessagesToday++
			}
		}
	}
	for _, atts := range s.attachments {
		for _, att := range atts {
			stats.AttachmentStorage += att.Size
		}
	}
	return stats, nil
}
