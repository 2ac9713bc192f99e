package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempinbox/backend/internal/auth/jwt"
	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/memory"
)

func newAuthFixture(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	manager := jwt.NewManager("unit-test-secret-key-32-chars-long-minimum", "tempinbox", 15*time.Minute, 7*24*time.Hour)
	svc := NewService(store, store, manager, zap.NewNop())
	return svc, store
}

func registerTestUser(t *testing.T, svc *Service) (*domain.User, *jwt.TokenPair) {
	t.Helper()
	user, pair, err := svc.Register(RegisterInput{
		Email:    "user@example.com",
		Password: "password123",
		Username: "tester",
	})
	require.NoError(t, err)
	return user, pair
}

func TestRegister(t *testing.T) {
	t.Run("注册成功返回用户与令牌", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		user, pair := registerTestUser(t, svc)

		assert.Equal(t, "user@example.com", user.Email)
		assert.Equal(t, domain.RoleUser, user.Role)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "password123", user.PasswordHash)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
	})

	t.Run("邮箱地址归一为小写", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		user, _, err := svc.Register(RegisterInput{
			Email:    "  User@Example.COM ",
			Password: "password123",
		})

		require.NoError(t, err)
		assert.Equal(t, "user@example.com", user.Email)
	})

	t.Run("重复邮箱拒绝", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		registerTestUser(t, svc)

		_, _, err := svc.Register(RegisterInput{
			Email:    "user@example.com",
			Password: "password456",
		})

		assert.ErrorIs(t, err, storage.ErrEmailExists)
	})

	t.Run("非法邮箱拒绝", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		_, _, err := svc.Register(RegisterInput{Email: "not-an-email", Password: "password123"})

		assert.Error(t, err)
	})

	t.Run("密码太短拒绝", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		_, _, err := svc.Register(RegisterInput{Email: "user@example.com", Password: "short"})

		assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
	})
}

func TestLogin(t *testing.T) {
	t.Run("登录成功", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		registered, _ := registerTestUser(t, svc)

		user, pair, err := svc.Login("user@example.com", "password123")

		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		assert.NotEmpty(t, pair.AccessToken)
	})

	t.Run("密码错误与账号不存在返回同一错误", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		registerTestUser(t, svc)

		_, _, wrongPassword := svc.Login("user@example.com", "wrong-password")
		_, _, noSuchUser := svc.Login("ghost@example.com", "password123")

		assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
		assert.ErrorIs(t, noSuchUser, ErrInvalidCredentials)
	})

	t.Run("被禁用账号拒绝登录", func(t *testing.T) {
		svc, store := newAuthFixture(t)
		user, _ := registerTestUser(t, svc)

		user.IsActive = false
		require.NoError(t, store.UpdateUser(user))

		_, _, err := svc.Login("user@example.com", "password123")

		assert.ErrorIs(t, err, ErrUserInactive)
	})
}

func TestValidateAndLogout(t *testing.T) {
	t.Run("有效令牌通过校验", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, pair := registerTestUser(t, svc)

		claims, err := svc.Validate(pair.AccessToken)

		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("登出后两个令牌都进黑名单", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		_, pair := registerTestUser(t, svc)

		require.NoError(t, svc.Logout(pair.AccessToken, pair.RefreshToken))

		_, err := svc.Validate(pair.AccessToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
		_, err = svc.Refresh(pair.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("登出不影响其他会话", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		registerTestUser(t, svc)

		_, first, err := svc.Login("user@example.com", "password123")
		require.NoError(t, err)
		_, second, err := svc.Login("user@example.com", "password123")
		require.NoError(t, err)

		require.NoError(t, svc.Logout(first.AccessToken, first.RefreshToken))

		_, err = svc.Validate(second.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("无效令牌登出静默跳过", func(t *testing.T) {
		svc, _ := newAuthFixture(t)

		assert.NoError(t, svc.Logout("garbage", ""))
	})
}

func TestRefresh(t *testing.T) {
	t.Run("刷新返回新的访问令牌", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, pair := registerTestUser(t, svc)

		access, err := svc.Refresh(pair.RefreshToken)

		require.NoError(t, err)
		claims, err := svc.Validate(access)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})
}

func TestChangePassword(t *testing.T) {
	t.Run("修改密码后旧密码失效", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, _ := registerTestUser(t, svc)

		require.NoError(t, svc.ChangePassword(user.ID, "password123", "newpassword456"))

		_, _, err := svc.Login("user@example.com", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, _, err = svc.Login("user@example.com", "newpassword456")
		assert.NoError(t, err)
	})

	t.Run("旧密码错误拒绝", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, _ := registerTestUser(t, svc)

		err := svc.ChangePassword(user.ID, "wrong-password", "newpassword456")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("新密码太短拒绝", func(t *testing.T) {
		svc, _ := newAuthFixture(t)
		user, _ := registerTestUser(t, svc)

		err := svc.ChangePassword(user.ID, "password123", "short")

		assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
	})
}
