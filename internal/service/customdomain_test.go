package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/dnsprov/cloudflare"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
)

// fakeDNSProvider 可编排 Zone 状态的 DNS 桩。
type fakeDNSProvider struct {
	zoneStatus     string
	createdZones   []string
	routingEnabled []string
	catchAllRules  []string
}

func newFakeDNSProvider() *fakeDNSProvider {
	return &fakeDNSProvider{zoneStatus: "pending"}
}

func (f *fakeDNSProvider) CreateZone(_ context.Context, domainName string) (*cloudflare.Zone, error) {
	f.createdZones = append(f.createdZones, domainName)
	return &cloudflare.Zone{
		ID:          "zone-" + domainName,
		Name:        domainName,
		Status:      "pending",
		NameServers: []string{"ns1.example-dns.com", "ns2.example-dns.com"},
	}, nil
}

func (f *fakeDNSProvider) GetZone(_ context.Context, zoneID string) (*cloudflare.Zone, error) {
	return &cloudflare.Zone{ID: zoneID, Status: f.zoneStatus}, nil
}

func (f *fakeDNSProvider) EnableEmailRouting(_ context.Context, zoneID string) error {
	f.routingEnabled = append(f.routingEnabled, zoneID)
	return nil
}

func (f *fakeDNSProvider) CreateCatchAllRule(_ context.Context, zoneID, workerName string) error {
	f.catchAllRules = append(f.catchAllRules, zoneID+":"+workerName)
	return nil
}

type customDomainFixture struct {
	svc   *CustomDomainService
	subs  *SubscriptionService
	store *memory.Store
	dns   *fakeDNSProvider
}

func newCustomDomainFixture(t *testing.T) *customDomainFixture {
	t.Helper()
	store := memory.NewStore()
	subs := NewSubscriptionService(store, zap.NewNop())
	dns := newFakeDNSProvider()
	svc := NewCustomDomainService(store, subs, dns, "email-worker", zap.NewNop())
	return &customDomainFixture{svc: svc, subs: subs, store: store, dns: dns}
}

func (f *customDomainFixture) premiumUser(t *testing.T, userID string) {
	t.Helper()
	_, err := f.subs.ChangePlan(userID, domain.TierPremium)
	require.NoError(t, err)
}

func TestCustomDomainRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("premium用户绑定域名返回NS记录", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")

		cd, nameServers, err := f.svc.Register(ctx, "user-1", "MyCorp.COM")

		require.NoError(t, err)
		assert.Equal(t, "mycorp.com", cd.Domain)
		assert.Equal(t, domain.DomainStatusPending, cd.Status)
		assert.False(t, cd.EmailRoutingEnabled)
		assert.Equal(t, []string{"ns1.example-dns.com", "ns2.example-dns.com"}, nameServers)
		assert.Equal(t, []string{"mycorp.com"}, f.dns.createdZones)
	})

	t.Run("非premium套餐拒绝", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		_, err := f.subs.ChangePlan("user-1", domain.TierStandard)
		require.NoError(t, err)

		_, _, err = f.svc.Register(ctx, "user-1", "mycorp.com")

		assert.ErrorIs(t, err, ErrCustomDomainNotAllowed)
	})

	t.Run("域名已被绑定拒绝", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		f.premiumUser(t, "user-2")

		_, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)
		_, _, err = f.svc.Register(ctx, "user-2", "mycorp.com")

		assert.ErrorIs(t, err, storage.ErrDomainExists)
	})

	t.Run("月度额度用尽拒绝", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")

		// premium 每月 5 个域名
		names := []string{"a.com", "b.com", "c.com", "d.com", "e.com"}
		for _, name := range names {
			_, _, err := f.svc.Register(ctx, "user-1", name)
			require.NoError(t, err)
		}

		_, _, err := f.svc.Register(ctx, "user-1", "f.com")
		assert.ErrorIs(t, err, ErrCustomDomainQuotaExceeded)
	})

	t.Run("非法域名拒绝", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")

		_, _, err := f.svc.Register(ctx, "user-1", "not a domain")

		assert.ErrorIs(t, err, domain.ErrInvalidDomain)
	})

	t.Run("未配置DNS编排时功能关闭", func(t *testing.T) {
		store := memory.NewStore()
		subs := NewSubscriptionService(store, zap.NewNop())
		svc := NewCustomDomainService(store, subs, nil, "", zap.NewNop())

		_, _, err := svc.Register(ctx, "user-1", "mycorp.com")

		assert.ErrorIs(t, err, ErrDNSProviderDisabled)
	})
}

func TestCustomDomainVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("Zone未激活时保持pending", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		got, err := f.svc.Verify(ctx, "user-1", cd.ID)

		require.NoError(t, err)
		assert.Equal(t, domain.DomainStatusPending, got.Status)
		assert.Empty(t, f.dns.routingEnabled)
	})

	t.Run("Zone激活后开启邮件路由与catch-all", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		f.dns.zoneStatus = "active"
		got, err := f.svc.Verify(ctx, "user-1", cd.ID)

		require.NoError(t, err)
		assert.Equal(t, domain.DomainStatusActive, got.Status)
		assert.True(t, got.EmailRoutingEnabled)
		assert.True(t, got.Routable())
		assert.Equal(t, []string{cd.ZoneID}, f.dns.routingEnabled)
		assert.Equal(t, []string{cd.ZoneID + ":email-worker"}, f.dns.catchAllRules)
	})

	t.Run("已激活域名重复校验是空操作", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		f.dns.zoneStatus = "active"
		_, err = f.svc.Verify(ctx, "user-1", cd.ID)
		require.NoError(t, err)
		_, err = f.svc.Verify(ctx, "user-1", cd.ID)
		require.NoError(t, err)

		// 路由只开了一次
		assert.Len(t, f.dns.routingEnabled, 1)
	})

	t.Run("非所有者不能校验", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, "user-2", cd.ID)

		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCustomDomainRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("解绑后域名可再次绑定", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		require.NoError(t, f.svc.Remove("user-1", cd.ID))

		list, err := f.svc.List("user-1")
		require.NoError(t, err)
		assert.Empty(t, list)

		_, _, err = f.svc.Register(ctx, "user-1", "mycorp.com")
		assert.NoError(t, err)
	})

	t.Run("非所有者不能解绑", func(t *testing.T) {
		f := newCustomDomainFixture(t)
		f.premiumUser(t, "user-1")
		cd, _, err := f.svc.Register(ctx, "user-1", "mycorp.com")
		require.NoError(t, err)

		err = f.svc.Remove("user-2", cd.ID)

		assert.ErrorIs(t, err, ErrForbidden)
	})
}
