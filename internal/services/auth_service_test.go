package services

import (
	"context"
	"testing"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authFixture struct {
	auth      *AuthService
	mailer    *fakeMailer
	directory *store.MemoryUserDirectory
	sessions  *SessionStore
	contexts  *ContextService
}

func newAuthFixture(t *testing.T) *authFixture {
	clock := newFakeClock()
	mailer := newFakeMailer()
	client, _ := newRedisClient(t)
	f := &authFixture{
		mailer:    mailer,
		directory: store.NewMemoryUserDirectory(),
		sessions:  NewSessionStore(client, time.Hour),
		contexts:  newContextService(clock),
	}
	f.auth = NewAuthService(newOtp(clock, mailer), f.directory, f.contexts, f.sessions, zap.NewNop())
	return f
}

func TestSignupRequiresNameBeforeConsumingCode(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.auth.SendCode(ctx, farmerEmail)
	require.NoError(t, err)
	code := f.mailer.lastCode(farmerEmail)

	_, err = f.auth.VerifyAndLogin(ctx, farmerEmail, code, SignupDetails{})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	res, err := f.auth.VerifyAndLogin(ctx, farmerEmail, code, SignupDetails{Name: "Asha", PreferredLanguage: "mr"})
	require.NoError(t, err, "the code survives the rejected signup")
	assert.True(t, res.IsNewUser)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Asha", res.Identity.Name)

	require.NotNil(t, res.Context)
	assert.Equal(t, res.Identity.ID, res.Context.UserID)
	assert.Equal(t, "Asha", *res.Context.Profile.Name)
	assert.Equal(t, farmerEmail, *res.Context.Profile.Email)
	assert.Equal(t, "mr", *res.Context.Profile.PreferredLanguage)
	assert.Nil(t, res.Context.Profile.Phone)

	userID, ok, err := f.sessions.Validate(ctx, res.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.Identity.ID, userID)
}

func TestLoginExistingUser(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	require.NoError(t, f.directory.Create(ctx, models.Identity{ID: "existing-id", Email: farmerEmail, Name: "Ravi"}))
	_, err := f.contexts.AppendChatMessages(ctx, "existing-id", []models.ChatInput{{Message: "old question"}})
	require.NoError(t, err)

	_, err = f.auth.SendCode(ctx, farmerEmail)
	require.NoError(t, err)
	res, err := f.auth.VerifyAndLogin(ctx, farmerEmail, f.mailer.lastCode(farmerEmail), SignupDetails{Name: "Ignored"})
	require.NoError(t, err)

	assert.False(t, res.IsNewUser)
	assert.Equal(t, "existing-id", res.Identity.ID)
	assert.Len(t, res.Context.Chats, 1, "login keeps the context")
	assert.Nil(t, res.Context.Profile.Name)
}

func TestVerifyAndLoginWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.auth.SendCode(ctx, farmerEmail)
	require.NoError(t, err)

	_, err = f.auth.VerifyAndLogin(ctx, farmerEmail, wrongCode(f.mailer.lastCode(farmerEmail)), SignupDetails{Name: "Asha"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidCode))

	_, err = f.directory.FindByEmail(ctx, farmerEmail)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
