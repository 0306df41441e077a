package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTService_UserAndAdminTokens(t *testing.T) {
	svc := NewJWTService("secret", 0)
	assert.Equal(t, DefaultSessionTTL, svc.TTL())

	id := uuid.New()
	tok, err := svc.SignUserToken(id)
	require.NoError(t, err)
	claims, err := svc.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.False(t, claims.IsAdmin)

	adminTok, err := svc.SignAdminToken("admin")
	require.NoError(t, err)
	claims, err = svc.VerifyToken(adminTok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "admin", claims.Admin)
}

func TestJWTService_RejectsForeignAndExpired(t *testing.T) {
	tok, err := NewJWTService("other", time.Hour).SignUserToken(uuid.New())
	require.NoError(t, err)
	_, err = NewJWTService("secret", time.Hour).VerifyToken(tok)
	assert.Error(t, err)

	expired, err := NewJWTService("secret", -time.Hour).sign(&JWTClaims{UserID: uuid.New()}, -time.Minute)
	require.NoError(t, err)
	_, err = NewJWTService("secret", time.Hour).VerifyToken(expired)
	assert.Error(t, err)
}

func TestAdminAuth_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hohoho"), bcrypt.MinCost)
	require.NoError(t, err)
	jwtSvc := NewJWTService("secret", time.Hour)
	a := NewAdminAuth("admin", string(hash), jwtSvc)

	tok, err := a.Login("admin", "hohoho")
	require.NoError(t, err)
	claims, err := jwtSvc.VerifyToken(tok)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	_, err = a.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login("root", "hohoho")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = NewAdminAuth("admin", "", jwtSvc).Login("admin", "hohoho")
	assert.ErrorIs(t, err, ErrAdminDisabled)
}
