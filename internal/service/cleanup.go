package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempinbox/backend/internal/blob"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/pool"
	"tempinbox/backend/internal/storage"
)

// cleanupBatchSize 单轮清理最多处理的过期邮箱数
const cleanupBatchSize = 500

// CleanupStats 单轮清理的统计结果。
type CleanupStats struct {
	MailboxesDeleted   int
	MessagesDeleted    int
	AttachmentsDeleted int
	GenerationsReaped  int
	Failed             int
}

// CleanupService 过期数据的定期回收。
//
// 每个邮箱独立清理，单个失败只记日志并跳过，下一轮重试；
// 清理与读取路径互不依赖——过期邮箱在被物理删除之前，
// 读取路径已经把它视作不存在。
type CleanupService struct {
	store     storage.Store
	blobs     blob.Storage
	ratelimit *RateLimitService
	workers   *pool.WorkerPool
	log       *zap.Logger
	now       func() time.Time
}

// NewCleanupService 创建清理服务。workers 可为 nil（附件对象串行删除）。
func NewCleanupService(store storage.Store, blobs blob.Storage, ratelimit *RateLimitService, workers *pool.WorkerPool, log *zap.Logger) *CleanupService {
	return &CleanupService{
		store:     store,
		blobs:     blobs,
		ratelimit: ratelimit,
		workers:   workers,
		log:       log,
		now:       time.Now,
	}
}

// SetClock 注入时钟，仅测试使用。
func (s *CleanupService) SetClock(now func() time.Time) {
	s.now = now
}

// Run 执行一轮完整清理：过期邮箱、其邮件与附件、窗口外的生成记录。
//
// 幂等：对已清理过的数据再跑一轮是空操作。
func (s *CleanupService) Run(ctx context.Context) CleanupStats {
	stats := CleanupStats{}
	now := s.now().UTC()

	expired, err := s.store.ListExpiredMailboxes(now, cleanupBatchSize)
	if err != nil {
		s.log.Error("list expired mailboxes failed", zap.Error(err))
	} else {
		for i := range expired {
			if ctx.Err() != nil {
				break
			}
			if err := s.sweepMailbox(ctx, &expired[i], &stats); err != nil {
				stats.Failed++
				s.log.Warn("mailbox cleanup failed",
					zap.String("mailbox_id", expired[i].ID),
					zap.String("address", expired[i].Address),
					zap.Error(err),
				)
			}
		}
	}

	reaped, err := s.ratelimit.ReapExpired(ctx)
	if err != nil {
		s.log.Error("generation record reap failed", zap.Error(err))
	}
	stats.GenerationsReaped = reaped

	s.log.Info("cleanup cycle finished",
		zap.Int("mailboxes", stats.MailboxesDeleted),
		zap.Int("messages", stats.MessagesDeleted),
		zap.Int("attachments", stats.AttachmentsDeleted),
		zap.Int("generations", stats.GenerationsReaped),
		zap.Int("failed", stats.Failed),
	)
	return stats
}

// sweepMailbox 清理单个过期邮箱：附件对象、邮件行、邮箱行，按此顺序。
func (s *CleanupService) sweepMailbox(ctx context.Context, mailbox *domain.Mailbox, stats *CleanupStats) error {
	attachments, err := s.store.ListAttachmentsByMailbox(mailbox.ID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	stats.AttachmentsDeleted += s.deleteBlobs(ctx, attachments)

	deleted, err := s.store.DeleteMessagesByMailbox(mailbox.ID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	stats.MessagesDeleted += deleted

	if err := s.store.DeleteMailbox(mailbox.ID); err != nil {
		return fmt.Errorf("delete mailbox: %w", err)
	}
	stats.MailboxesDeleted++
	return nil
}

// deleteBlobs 删除一批附件对象，返回成功数量。
//
// 有协程池时并发删除，等待本批全部完成后才继续删数据库行，
// 保证附件行总是在对象之后消失。
func (s *CleanupService) deleteBlobs(ctx context.Context, attachments []domain.Attachment) int {
	if s.blobs == nil || len(attachments) == 0 {
		return 0
	}

	var (
		mu      sync.Mutex
		deleted int
	)
	deleteOne := func(att domain.Attachment) {
		if att.DeleteHandle == "" {
			return
		}
		if err := s.blobs.Delete(ctx, att.DeleteHandle); err != nil {
			s.log.Warn("attachment blob delete failed",
				zap.String("attachment_id", att.ID),
				zap.Error(err),
			)
			return
		}
		mu.Lock()
		deleted++
		mu.Unlock()
	}

	if s.workers == nil {
		for _, att := range attachments {
			deleteOne(att)
		}
		return deleted
	}

	var wg sync.WaitGroup
	for _, att := range attachments {
		att := att
		wg.Add(1)
		s.workers.Submit(func() {
			defer wg.Done()
			deleteOne(att)
		})
	}
	wg.Wait()
	return deleted
}
