package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}
}

func TestAuthServiceTokenRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	auth := NewAuthService(testConfig(), rdb)
	ctx := context.Background()

	student := model.Student{ID: 7, Username: "asha", ClassLevel: "class11", Stream: "pcm", AssignedSet: "b"}
	token, err := auth.GenerateStudentToken(ctx, student)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, student, claims.Student)
	assert.Equal(t, "7", claims.Subject)

	require.NoError(t, auth.ValidateStudentSession(ctx, 7, claims.ID))
	assert.ErrorIs(t, auth.ValidateStudentSession(ctx, 7, "other-jti"), ErrSessionInvalidated)
}

func TestAuthServiceSingleDevice(t *testing.T) {
	_, rdb := newTestRedis(t)
	auth := NewAuthService(testConfig(), rdb)
	ctx := context.Background()
	student := model.Student{ID: 1, ClassLevel: "class9"}

	_, err := auth.GenerateStudentToken(ctx, student)
	require.NoError(t, err)

	_, err = auth.GenerateStudentToken(ctx, student)
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	require.NoError(t, auth.ResetStudentSession(ctx, 1))
	assert.ErrorIs(t, auth.ValidateStudentSession(ctx, 1, "x"), ErrNoActiveSession)

	_, err = auth.GenerateStudentToken(ctx, student)
	assert.NoError(t, err)
}

func TestAuthServiceRejectsForeignSecret(t *testing.T) {
	_, rdb := newTestRedis(t)
	issuer := NewAuthService(&config.Config{JWTSecret: "one", JWTExpiry: time.Hour}, rdb)
	verifier := NewAuthService(&config.Config{JWTSecret: "two", JWTExpiry: time.Hour}, rdb)

	token, err := issuer.GenerateStudentToken(context.Background(), model.Student{ID: 3})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}
