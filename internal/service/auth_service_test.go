package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperr"
	"storefront/internal/store/storetest"
)

func newAuth(t *testing.T) (*AuthService, *storetest.Memory) {
	t.Helper()
	db := storetest.New()
	svc := NewAuthService(db)
	svc.bcryptCost = bcrypt.MinCost
	return svc, db
}

func TestRegisterLoginLogout(t *testing.T) {
	svc, db := newAuth(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Username: "maria", Email: "maria@example.com", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.Len(t, session.Token, 40)
	assert.NotEqual(t, "s3cretpass", session.User.PasswordHash)

	profile, err := db.GetProfile(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, profile.UserID)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "maria", user.Username)

	login, err := svc.Login(ctx, LoginInput{Username: "maria", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.NotEqual(t, session.Token, login.Token)

	svc.Logout(ctx, login.Token)
	_, err = svc.Authenticate(ctx, login.Token)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = svc.Authenticate(ctx, session.Token)
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "joao", Email: "joao@example.com", Password: "short"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "password")

	_, err = svc.Register(ctx, RegisterInput{Username: "joao", Email: "nope", Password: "longenough"})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "email")

	_, err = svc.Register(ctx, RegisterInput{Username: "joao", Email: "joao@example.com", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "joao", Email: "other@example.com", Password: "longenough"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuth(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "ana", Email: "ana@example.com", Password: "correcthorse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Username: "ana", Password: "wrongpass"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Login(ctx, LoginInput{Username: "ghost", Password: "whatever1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Login(ctx, LoginInput{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLogoutIsBestEffort(t *testing.T) {
	svc, db := newAuth(t)
	db.FailOn("DeleteToken", 1, errors.New("connection reset"))

	assert.NotPanics(t, func() { svc.Logout(context.Background(), "whatever") })
}

func TestAuthenticateEmptyToken(t *testing.T) {
	svc, _ := newAuth(t)
	_, err := svc.Authenticate(context.Background(), "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
