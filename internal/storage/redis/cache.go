package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tempinbox/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// AddressCache 入站解析热路径使用的邮箱地址缓存。
//
// 缓存 TTL 必须远小于最短的邮箱生存时间（匿名 10 分钟），
// 否则已过期的邮箱可能在缓存里多活一个 TTL。
type AddressCache struct {
	client *Client
	ttl    time.Duration
}

// NewAddressCache 创建地址缓存。
func NewAddressCache(client *Client, ttl time.Duration) *AddressCache {
	if ttl <= 0 || ttl > time.Minute {
		ttl = 30 * time.Second
	}
	return &AddressCache{client: client, ttl: ttl}
}

func addressKey(address string) string {
	return fmt.Sprintf("mailbox:addr:%s", address)
}

// GetMailbox 按地址读取缓存的邮箱。
func (c *AddressCache) GetMailbox(ctx context.Context, address string) (*domain.Mailbox, error) {
	data, err := c.client.rdb.Get(ctx, addressKey(address)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// PutMailbox 写入地址缓存。
func (c *AddressCache) PutMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	data, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, addressKey(mailbox.Address), data, c.ttl).Err()
}

// Invalidate 删除地址缓存（邮箱删除、停用、续期后调用）。
func (c *AddressCache) Invalidate(ctx context.Context, address string) error {
	return c.client.rdb.Del(ctx, addressKey(address)).Err()
}

// Blacklist JWT 黑名单的 Redis 实现，登出的 jti 跟随令牌过期自动回收。
type Blacklist struct {
	client *Client
}

// NewBlacklist 创建 JWT 黑名单。
func NewBlacklist(client *Client) *Blacklist {
	return &Blacklist{client: client}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("jwt:blacklist:%s", jti)
}

// AddToBlacklist 将 jti 加入黑名单。
func (b *Blacklist) AddToBlacklist(jti string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return b.client.rdb.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

// IsBlacklisted 判断 jti 是否在黑名单内。
func (b *Blacklist) IsBlacklisted(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	count, err := b.client.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
