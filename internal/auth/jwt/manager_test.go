package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager(testSecret, "tenantmail", 15*time.Minute, 7*24*time.Hour)

	t.Run("生成的令牌对可以验证通过", func(t *testing.T) {
		pair, err := m.GenerateTokenPair("mb-1", "t-1", "alice@acme.example")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		claims, err := m.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "mb-1", claims.MailboxID)
		assert.Equal(t, "t-1", claims.TenantID)
		assert.Equal(t, "alice@acme.example", claims.Email)
		assert.Equal(t, "tenantmail", claims.Issuer)
	})

	t.Run("密钥不匹配的令牌被拒绝", func(t *testing.T) {
		other := NewManager("another-secret-also-32-characters!!!", "tenantmail", 15*time.Minute, time.Hour)
		pair, err := other.GenerateTokenPair("mb-1", "t-1", "alice@acme.example")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌返回过期错误", func(t *testing.T) {
		expired := NewManager(testSecret, "tenantmail", -time.Minute, time.Hour)
		pair, err := expired.GenerateTokenPair("mb-1", "t-1", "alice@acme.example")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("畸形令牌被拒绝", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshAccessToken(t *testing.T) {
	m := NewManager(testSecret, "tenantmail", 15*time.Minute, 7*24*time.Hour)

	t.Run("刷新令牌换取新的访问令牌", func(t *testing.T) {
		pair, err := m.GenerateTokenPair("mb-1", "t-1", "alice@acme.example")
		require.NoError(t, err)

		access, err := m.RefreshAccessToken(pair.RefreshToken)
		require.NoError(t, err)

		claims, err := m.ValidateToken(access)
		require.NoError(t, err)
		assert.Equal(t, "mb-1", claims.MailboxID)
	})

	t.Run("无效刷新令牌被拒绝", func(t *testing.T) {
		_, err := m.RefreshAccessToken("garbage")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
