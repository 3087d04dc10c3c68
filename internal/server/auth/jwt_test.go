package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Hour)
	require.NoError(t, err)

	gotUserID, err := GetUserIDFromToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUserID)
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u1", []byte("secret"), -1*time.Second)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestGetUserIDFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), time.Hour)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, []byte("wrong-secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestGetUserIDFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := GetUserIDFromToken("not.a.jwt", []byte("k"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestGetUserIDFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: "u3"}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, []byte("k"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestGetUserIDFromToken_MissingUser(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("", []byte("k"), time.Hour)
	require.NoError(t, err)

	_, err = GetUserIDFromToken(tok, []byte("k"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestUserIDContext(t *testing.T) {
	t.Parallel()

	_, ok := UserID(context.Background())
	assert.False(t, ok)

	id, ok := UserID(WithUserID(context.Background(), "u9"))
	assert.True(t, ok)
	assert.Equal(t, "u9", id)
}
