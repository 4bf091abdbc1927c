package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig([]byte("test-secret-at-least-32-bytes-long!!"))
	cfg.BcryptCost = 4 // keep tests fast
	return cfg
}

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(testConfig())
	require.NoError(t, err)
	return a
}

func TestRegisterAndAuthenticate(t *testing.T) {
	a := newAuth(t)

	user, err := a.Register("ana", "ana@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = a.Register("ana", "other@example.com", "password123")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = a.Register("bob", "bob@example.com", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	token, authed, err := a.Authenticate("ana", "password123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, user.ID, authed.ID)

	claims, err := a.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, "ana", claims.Username)

	// Bearer prefix is accepted
	claims, err = a.ValidateToken("Bearer " + token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Username)

	_, _, err = a.Authenticate("ana", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Authenticate("nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFailedLogins = 3
	a, err := NewAuthenticator(cfg)
	require.NoError(t, err)

	_, err = a.Register("ana", "", "password123")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err = a.Authenticate("ana", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the right password is refused while locked
	_, _, err = a.Authenticate("ana", "password123")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestTokenTampering(t *testing.T) {
	a := newAuth(t)
	_, err := a.Register("ana", "", "password123")
	require.NoError(t, err)
	token, _, err := a.Authenticate("ana", "password123")
	require.NoError(t, err)

	parts := strings.Split(token.AccessToken, ".")
	require.Len(t, parts, 3)

	tampered := parts[0] + "." + parts[1] + ".AAAA"
	_, err = a.ValidateToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTokenWithoutExpiryNeverExpires(t *testing.T) {
	cfg := testConfig()
	cfg.TokenExpiry = 0
	a, err := NewAuthenticator(cfg)
	require.NoError(t, err)

	_, err = a.Register("ana", "", "password123")
	require.NoError(t, err)
	token, _, err := a.Authenticate("ana", "password123")
	require.NoError(t, err)
	assert.Zero(t, token.ExpiresIn)

	claims, err := a.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Zero(t, claims.Exp)
}

func TestChangePassword(t *testing.T) {
	a := newAuth(t)
	_, err := a.Register("ana", "", "password123")
	require.NoError(t, err)

	assert.ErrorIs(t, a.ChangePassword("ana", "wrong", "newpassword1"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.ChangePassword("ana", "password123", "pw"), ErrPasswordTooShort)
	assert.ErrorIs(t, a.ChangePassword("ghost", "password123", "newpassword1"), ErrUserNotFound)

	require.NoError(t, a.ChangePassword("ana", "password123", "newpassword1"))
	_, _, err = a.Authenticate("ana", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Authenticate("ana", "newpassword1")
	assert.NoError(t, err)
}

func TestDisabledAuthPassesThrough(t *testing.T) {
	a, err := NewAuthenticator(Config{Enabled: false})
	require.NoError(t, err)

	claims, err := a.ValidateToken("")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", claims.Sub)
}

func TestMissingSecretRejected(t *testing.T) {
	_, err := NewAuthenticator(Config{Enabled: true})
	assert.ErrorIs(t, err, ErrMissingSecret)
}
