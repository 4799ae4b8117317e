package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()

	_, err := GetPrincipal(ctx)
	assert.Error(t, err)
	assert.Equal(t, System, PrincipalOrSystem(ctx))

	ctx = WithPrincipal(ctx, Principal{ID: "user-1", Role: "owner"})
	p, err := GetPrincipal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "owner", p.Role)
	assert.Equal(t, p, PrincipalOrSystem(ctx))
}

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	secret := []byte("test-secret")
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	tokenStr := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "agent",
	})

	p, err := ParseToken(tokenStr, keyFunc)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.ID)
	assert.Equal(t, "agent", p.Role)
}

func TestParseToken_DefaultsRoleToOwner(t *testing.T) {
	secret := []byte("test-secret")
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	tokenStr := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	p, err := ParseToken(tokenStr, keyFunc)
	require.NoError(t, err)
	assert.Equal(t, "owner", p.Role)
}

func TestParseToken_Rejections(t *testing.T) {
	secret := []byte("test-secret")
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	expired := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	_, err := ParseToken(expired, keyFunc)
	assert.Error(t, err)

	wrongKey := signToken(t, []byte("other-secret"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	_, err = ParseToken(wrongKey, keyFunc)
	assert.Error(t, err)

	_, err = ParseToken("not-a-token", keyFunc)
	assert.Error(t, err)
}
