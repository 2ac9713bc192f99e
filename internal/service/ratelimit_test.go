package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage/memory"
)

func newRateLimitFixture(t *testing.T, at time.Time) (*RateLimitService, *memory.Store, *time.Time) {
	t.Helper()
	store := memory.NewStore()
	svc := NewRateLimitService(store, zap.NewNop())

	current := at
	clock := func() time.Time { return current }
	svc.SetClock(clock)
	store.SetClock(clock)
	return svc, store, &current
}

func TestRateLimitCanGenerate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	anon := domain.Identity{IPAddress: "203.0.113.7", SessionID: "sess-1"}

	t.Run("窗口内未达上限允许生成", func(t *testing.T) {
		svc, _, _ := newRateLimitFixture(t, base)

		decision, err := svc.CanGenerate(ctx, anon, domain.TierAnonymous)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, decision.Remaining)
		assert.Equal(t, 2, decision.CurrentLimit)
		assert.Nil(t, decision.ResetAt)
	})

	t.Run("达到上限拒绝并给出重置时间", func(t *testing.T) {
		svc, _, current := newRateLimitFixture(t, base)

		// 10:00 和 10:05 各生成一次，匿名上限为 2
		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "a@tempinbox.io"))
		*current = base.Add(5 * time.Minute)
		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "b@tempinbox.io"))

		*current = base.Add(6 * time.Minute)
		decision, err := svc.CanGenerate(ctx, anon, domain.TierAnonymous)

		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, 0, decision.Remaining)
		assert.True(t, decision.RequiresAuth)
		// 重置时间 = 窗口内最早一条记录 + 1 小时
		require.NotNil(t, decision.ResetAt)
		assert.Equal(t, base.Add(time.Hour), *decision.ResetAt)
	})

	t.Run("窗口滑动后重新放行", func(t *testing.T) {
		svc, _, current := newRateLimitFixture(t, base)

		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "a@tempinbox.io"))
		*current = base.Add(5 * time.Minute)
		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "b@tempinbox.io"))

		// 11:01 时第一条记录已滑出窗口，只剩 10:05 的一条
		*current = base.Add(61 * time.Minute)
		decision, err := svc.CanGenerate(ctx, anon, domain.TierAnonymous)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, decision.Remaining)
	})

	t.Run("已登录用户拒绝时不提示注册", func(t *testing.T) {
		svc, _, _ := newRateLimitFixture(t, base)
		userID := "user-1"
		user := domain.Identity{UserID: &userID}

		for i := 0; i < 5; i++ {
			require.NoError(t, svc.RecordGeneration(ctx, user, domain.TierFree, "x@tempinbox.io"))
		}

		decision, err := svc.CanGenerate(ctx, user, domain.TierFree)

		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.False(t, decision.RequiresAuth)
	})

	t.Run("不同身份互不影响", func(t *testing.T) {
		svc, _, _ := newRateLimitFixture(t, base)
		other := domain.Identity{IPAddress: "198.51.100.9"}

		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "a@tempinbox.io"))
		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "b@tempinbox.io"))

		decision, err := svc.CanGenerate(ctx, other, domain.TierAnonymous)

		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, decision.Remaining)
	})
}

func TestRateLimitIdentityKey(t *testing.T) {
	t.Run("登录用户优先使用用户ID", func(t *testing.T) {
		userID := "user-1"
		identity := domain.Identity{UserID: &userID, IPAddress: "203.0.113.7", SessionID: "sess-1"}
		assert.Equal(t, "user:user-1", identity.Key())
	})

	t.Run("匿名用户优先使用IP", func(t *testing.T) {
		identity := domain.Identity{IPAddress: "203.0.113.7", SessionID: "sess-1"}
		assert.Equal(t, "ip:203.0.113.7", identity.Key())
	})

	t.Run("无IP时退回会话ID", func(t *testing.T) {
		identity := domain.Identity{SessionID: "sess-1"}
		assert.Equal(t, "session:sess-1", identity.Key())
	})
}

func TestRateLimitReapExpired(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	anon := domain.Identity{IPAddress: "203.0.113.7"}

	t.Run("只回收保留期之外的记录", func(t *testing.T) {
		svc, _, current := newRateLimitFixture(t, base)

		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "old@tempinbox.io"))
		*current = base.Add(30 * time.Minute)
		require.NoError(t, svc.RecordGeneration(ctx, anon, domain.TierAnonymous, "new@tempinbox.io"))

		// 第一条已超出 70 分钟保留期，第二条还在
		*current = base.Add(GenerationRetention + time.Minute)
		reaped, err := svc.ReapExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, reaped)

		// 再跑一轮是空操作
		reaped, err = svc.ReapExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, reaped)
	})
}
