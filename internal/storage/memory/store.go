package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
)

// Store 使用内存保存全部数据，主要用于开发验证与单元测试。
//
// 过期邮箱在读取路径上立即不可见，物理删除交给清理任务。
type Store struct {
	mu sync.RWMutex

	mailboxes   map[string]*domain.Mailbox
	byAddress   map[string]string                     // address -> mailboxID
	messages    map[string]map[string]*domain.Message // mailboxID -> messageID -> message
	attachments map[string][]*domain.Attachment       // messageID -> attachments

	generations []*domain.GenerationRecord

	subscriptions map[string]*domain.Subscription // userID -> subscription

	customDomains map[string]*domain.CustomDomain // domainID -> customDomain
	byDomain      map[string]string               // domain -> domainID

	users   map[string]*domain.User // userID -> user
	byEmail map[string]string       // email -> userID

	blacklist map[string]time.Time // jti -> expiry

	now func() time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes:     make(map[string]*domain.Mailbox),
		byAddress:     make(map[string]string),
		messages:      make(map[string]map[string]*domain.Message),
		attachments:   make(map[string][]*domain.Attachment),
		generations:   make([]*domain.GenerationRecord, 0),
		subscriptions: make(map[string]*domain.Subscription),
		customDomains: make(map[string]*domain.CustomDomain),
		byDomain:      make(map[string]string),
		users:         make(map[string]*domain.User),
		byEmail:       make(map[string]string),
		blacklist:     make(map[string]time.Time),
		now:           time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ========== MailboxRepository ==========

// SaveMailbox 保存邮箱。地址被活跃邮箱占用时返回 ErrAddressTaken，
// 对应 SQL 实现中的唯一索引冲突；过期地址允许复用。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := strings.ToLower(mailbox.Address)
	if existingID, ok := s.byAddress[address]; ok {
		existing := s.mailboxes[existingID]
		if existing != nil && !existing.Expired(s.now()) {
			return storage.ErrAddressTaken
		}
		// 过期占位，先物理清除再复用地址
		s.deleteMailboxLocked(existingID)
	}

	s.mailboxes[mailbox.ID] = mailbox
	s.byAddress[address] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱，过期视作不存在。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok || mailbox.Expired(s.now()) {
		return nil, storage.ErrMailboxNotFound
	}
	clone := *mailbox
	return &clone, nil
}

// GetMailboxByAddress 根据地址获取邮箱，过期视作不存在。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mailbox, ok := s.mailboxes[id]
	if !ok || mailbox.Expired(s.now()) {
		return nil, storage.ErrMailboxNotFound
	}
	clone := *mailbox
	return &clone, nil
}

// GetMailboxByAddressAny 根据地址获取邮箱，包含已过期的。
func (s *Store) GetMailboxByAddressAny(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	clone := *mailbox
	return &clone, nil
}

// UpdateMailbox 更新邮箱（续期、停用等）。
func (s *Store) UpdateMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[mailbox.ID]; !ok {
		return storage.ErrMailboxNotFound
	}
	clone := *mailbox
	s.mailboxes[mailbox.ID] = &clone
	return nil
}

// DeleteMailbox 物理删除邮箱及其全部邮件，过期邮箱同样可删。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[id]; !ok {
		return storage.ErrMailboxNotFound
	}
	s.deleteMailboxLocked(id)
	return nil
}

func (s *Store) deleteMailboxLocked(id string) {
	if mailbox, ok := s.mailboxes[id]; ok {
		delete(s.byAddress, strings.ToLower(mailbox.Address))
	}
	for messageID := range s.messages[id] {
		delete(s.attachments, messageID)
	}
	delete(s.messages, id)
	delete(s.mailboxes, id)
}

// ListMailboxesByUserID 返回用户的全部未过期邮箱。
func (s *Store) ListMailboxesByUserID(userID string) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]domain.Mailbox, 0)
	for _, mailbox := range s.mailboxes {
		if mailbox.UserID != nil && *mailbox.UserID == userID && mailbox.IsActive && !mailbox.Expired(now) {
			out = append(out, *mailbox)
		}
	}
	sortMailboxes(out)
	return out, nil
}

// ListMailboxesByAnonOwner 按 sessionID 或 IP 任一匹配返回匿名邮箱。
// 双键 OR 查询：客户端可能只带着其中一个凭据回来。
func (s *Store) ListMailboxesByAnonOwner(sessionID, ipAddress string) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]domain.Mailbox, 0)
	for _, mailbox := range s.mailboxes {
		if mailbox.UserID != nil || !mailbox.IsActive || mailbox.Expired(now) {
			continue
		}
		if (sessionID != "" && mailbox.SessionID == sessionID) ||
			(ipAddress != "" && mailbox.IPAddress == ipAddress) {
			out = append(out, *mailbox)
		}
	}
	sortMailboxes(out)
	return out, nil
}

// ListExpiredMailboxes 返回已过期的邮箱，供清理任务使用。
func (s *Store) ListExpiredMailboxes(before time.Time, limit int) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mailbox, 0)
	for _, mailbox := range s.mailboxes {
		if mailbox.ExpiresAt.Before(before) {
			out = append(out, *mailbox)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func sortMailboxes(list []domain.Mailbox) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// ========== MessageRepository ==========

// SaveMessage 保存邮件与其附件元数据。
func (s *Store) SaveMessage(message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[message.MailboxID]; !ok {
		return storage.ErrMailboxNotFound
	}
	if s.messages[message.MailboxID] == nil {
		s.messages[message.MailboxID] = make(map[string]*domain.Message)
	}
	clone := *message
	s.messages[message.MailboxID][message.ID] = &clone

	if len(message.Attachments) > 0 {
		atts := make([]*domain.Attachment, 0, len(message.Attachments))
		for i := range message.Attachments {
			a := message.Attachments[i]
			atts = append(atts, &a)
		}
		s.attachments[message.ID] = atts
	}
	return nil
}

// GetMessage 获取单封邮件（含附件元数据）。
func (s *Store) GetMessage(mailboxID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[mailboxID][messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	clone := *message
	clone.Attachments = s.attachmentsLocked(messageID)
	return &clone, nil
}

// ListMessages 返回收件箱全部邮件，按接收时间倒序。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0, len(s.messages[mailboxID]))
	for _, message := range s.messages[mailboxID] {
		clone := *message
		clone.Attachments = s.attachmentsLocked(message.ID)
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	return out, nil
}

// MarkMessageRead 标记邮件已读。
func (s *Store) MarkMessageRead(mailboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[mailboxID][messageID]
	if !ok {
		return storage.ErrMessageNotFound
	}
	message.IsRead = true
	return nil
}

// DeleteMessage 删除单封邮件及其附件元数据。
func (s *Store) DeleteMessage(mailboxID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[mailboxID][messageID]; !ok {
		return storage.ErrMessageNotFound
	}
	delete(s.messages[mailboxID], messageID)
	delete(s.attachments, messageID)
	return nil
}

// DeleteMessagesByMailbox 删除收件箱全部邮件，返回删除数量。
func (s *Store) DeleteMessagesByMailbox(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.messages[mailboxID])
	for messageID := range s.messages[mailboxID] {
		delete(s.attachments, messageID)
	}
	delete(s.messages, mailboxID)
	return count, nil
}

// CountMessages 返回收件箱当前邮件数。
func (s *Store) CountMessages(mailboxID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[mailboxID]), nil
}

// OldestMessage 返回 receivedAt 最早的邮件。
func (s *Store) OldestMessage(mailboxID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *domain.Message
	for _, message := range s.messages[mailboxID] {
		if oldest == nil || message.ReceivedAt.Before(oldest.ReceivedAt) {
			oldest = message
		}
	}
	if oldest == nil {
		return nil, storage.ErrMessageNotFound
	}
	clone := *oldest
	clone.Attachments = s.attachmentsLocked(oldest.ID)
	return &clone, nil
}

// SumAttachmentBytes 返回收件箱下已存附件的字节总和。
func (s *Store) SumAttachmentBytes(mailboxID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for messageID := range s.messages[mailboxID] {
		for _, att := range s.attachments[messageID] {
			total += att.Size
		}
	}
	return total, nil
}

// ListAttachments 返回邮件的附件元数据。
func (s *Store) ListAttachments(messageID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attachmentsLocked(messageID), nil
}

// ListAttachmentsByMailbox 返回收件箱全部附件元数据，供清理任务使用。
func (s *Store) ListAttachmentsByMailbox(mailboxID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attachment, 0)
	for messageID := range s.messages[mailboxID] {
		out = append(out, s.attachmentsLocked(messageID)...)
	}
	return out, nil
}

func (s *Store) attachmentsLocked(messageID string) []domain.Attachment {
	atts := s.attachments[messageID]
	if len(atts) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(atts))
	for _, att := range atts {
		out = append(out, *att)
	}
	return out
}

// ========== JWTRepository ==========

// AddToBlacklist 将 jti 加入黑名单。
func (s *Store) AddToBlacklist(jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[jti] = s.now().Add(ttl)
	return nil
}

// IsBlacklisted 判断 jti 是否在黑名单内。
func (s *Store) IsBlacklisted(jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.blacklist[jti]
	if !ok {
		return false, nil
	}
	return expiry.After(s.now()), nil
}

// Close 关闭存储，内存实现无事可做。
func (s *Store) Close() error { return nil }

// Health 健康检查。
func (s *Store) Health() error { return nil }
