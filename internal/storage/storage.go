package storage

import (
	"errors"
	"time"

	"tempinbox/backend/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱不存在或已过期
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMessageNotFound 邮件不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrAddressTaken 邮箱地址已被占用（唯一索引冲突）
	ErrAddressTaken = errors.New("address already taken")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists 注册邮箱已存在
	ErrEmailExists = errors.New("email already exists")
	// ErrSubscriptionNotFound 订阅不存在
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrDomainNotFound 自有域名不存在
	ErrDomainNotFound = errors.New("custom domain not found")
	// ErrDomainExists 自有域名已被绑定
	ErrDomainExists = errors.New("custom domain already exists")
)

// MailboxRepository 定义邮箱数据存取操作。
//
// 地址唯一性由存储层唯一索引保证（SaveMailbox 冲突时返回
// ErrAddressTaken），这是整个系统唯一需要存储层硬保证的并发不变量。
type MailboxRepository interface {
	SaveMailbox(mailbox *domain.Mailbox) error
	GetMailbox(id string) (*domain.Mailbox, error)
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	// GetMailboxByAddressAny 不过滤过期邮箱，供读取 API 区分 404 与 410。
	GetMailboxByAddressAny(address string) (*domain.Mailbox, error)
	UpdateMailbox(mailbox *domain.Mailbox) error
	DeleteMailbox(id string) error
	ListMailboxesByUserID(userID string) ([]domain.Mailbox, error)
	// ListMailboxesByAnonOwner 按 sessionID 或 IP 任一匹配查询匿名邮箱。
	ListMailboxesByAnonOwner(sessionID, ipAddress string) ([]domain.Mailbox, error)
	ListExpiredMailboxes(before time.Time, limit int) ([]domain.Mailbox, error)
}

// MessageRepository 定义邮件与附件数据存取操作。
type MessageRepository interface {
	SaveMessage(message *domain.Message) error
	GetMessage(mailboxID, messageID string) (*domain.Message, error)
	ListMessages(mailboxID string) ([]domain.Message, error)
	MarkMessageRead(mailboxID, messageID string) error
	DeleteMessage(mailboxID, messageID string) error
	DeleteMessagesByMailbox(mailboxID string) (int, error)
	CountMessages(mailboxID string) (int, error)
	// OldestMessage 返回收件箱中 receivedAt 最早的邮件，空箱返回 ErrMessageNotFound。
	OldestMessage(mailboxID string) (*domain.Message, error)
	// SumAttachmentBytes 返回收件箱下所有已存附件的字节总和。
	SumAttachmentBytes(mailboxID string) (int64, error)
	ListAttachments(messageID string) ([]domain.Attachment, error)
	ListAttachmentsByMailbox(mailboxID string) ([]domain.Attachment, error)
}

// GenerationRepository 定义生成记录存取操作。
//
// 限流计数永远基于 generatedAt 时间戳重新计算，
// 记录回收与计数互不影响。
type GenerationRepository interface {
	SaveGeneration(record *domain.GenerationRecord) error
	CountGenerations(identityKey string, tier domain.PlanTier, since time.Time) (int, error)
	// OldestGeneration 返回窗口内最早的一条记录，没有则返回 nil。
	OldestGeneration(identityKey string, tier domain.PlanTier, since time.Time) (*domain.GenerationRecord, error)
	DeleteGenerationsBefore(before time.Time) (int, error)
}

// SubscriptionRepository 定义订阅数据存取操作。
type SubscriptionRepository interface {
	SaveSubscription(sub *domain.Subscription) error
	GetSubscriptionByUserID(userID string) (*domain.Subscription, error)
	UpdateSubscription(sub *domain.Subscription) error
}

// CustomDomainRepository 定义自有域名数据存取操作。
type CustomDomainRepository interface {
	SaveCustomDomain(cd *domain.CustomDomain) error
	GetCustomDomain(id string) (*domain.CustomDomain, error)
	GetCustomDomainByDomain(name string) (*domain.CustomDomain, error)
	ListCustomDomainsByUserID(userID string) ([]*domain.CustomDomain, error)
	UpdateCustomDomain(cd *domain.CustomDomain) error
	DeleteCustomDomain(id string) error
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateLastLogin(userID string) error
}

// AdminRepository 定义管理员数据存取操作。
type AdminRepository interface {
	ListUsers(page, pageSize int, search string) ([]domain.User, int, error)
	GetSystemStatistics() (*domain.SystemStatistics, error)
}

// JWTRepository 定义 JWT 黑名单操作。
type JWTRepository interface {
	AddToBlacklist(jti string, ttl time.Duration) error
	IsBlacklisted(jti string) (bool, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	MessageRepository
	GenerationRepository
	SubscriptionRepository
	CustomDomainRepository
	UserRepository
	AdminRepository
	JWTRepository

	Close() error
	Health() error
}
