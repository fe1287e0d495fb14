package services

import (
	"context"
	"errors"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionIssuer creates bearer sessions for authenticated users.
type SessionIssuer interface {
	Create(ctx context.Context, userID string) (string, error)
}

// SignupDetails are only used when the email is not registered yet.
type SignupDetails struct {
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	PreferredLanguage string `json:"preferred_language"`
}

// AuthResult is returned after a successful code verification.
type AuthResult struct {
	Token     string              `json:"token"`
	Identity  models.Identity     `json:"user"`
	IsNewUser bool                `json:"is_new_user"`
	Context   *models.UserContext `json:"context"`
}

// AuthService turns a verified email code into a login or a signup.
type AuthService struct {
	otp       *OtpAuthenticator
	directory store.UserDirectory
	contexts  *ContextService
	sessions  SessionIssuer
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthService(otp *OtpAuthenticator, directory store.UserDirectory, contexts *ContextService, sessions SessionIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{
		otp:       otp,
		directory: directory,
		contexts:  contexts,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AuthService) SendCode(ctx context.Context, email string) (time.Time, error) {
	return s.otp.Issue(ctx, email)
}

// VerifyAndLogin consumes the code and opens a session. Unknown emails are
// registered with details; a missing name is rejected before the code is touched.
func (s *AuthService) VerifyAndLogin(ctx context.Context, email, code string, details SignupDetails) (*AuthResult, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return nil, err
	}

	identity, err := s.directory.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var profile models.Profile
	if identity == nil {
		profile, err = models.SanitizeProfile(models.Profile{
			Name:              &details.Name,
			Email:             &email,
			Phone:             &details.Phone,
			PreferredLanguage: &details.PreferredLanguage,
		})
		if err != nil {
			return nil, err
		}
		if profile.Name == nil {
			return nil, apperr.Validation("name", "Name is required to create an account")
		}
	}

	if err := s.otp.Verify(ctx, email, code); err != nil {
		return nil, err
	}

	result := &AuthResult{}
	if identity == nil {
		identity, result.IsNewUser, err = s.register(ctx, email, *profile.Name)
		if err != nil {
			return nil, err
		}
	}
	result.Identity = *identity

	if result.IsNewUser {
		result.Context, err = s.contexts.ReplaceProfile(ctx, identity.ID, profile)
	} else {
		result.Context, err = s.contexts.EnsureExists(ctx, identity.ID, models.Profile{})
	}
	if err != nil {
		return nil, err
	}

	result.Token, err = s.sessions.Create(ctx, identity.ID)
	if err != nil {
		s.logger.Error("Failed to create session", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, apperr.Transient("Failed to create session", err)
	}

	s.logger.Info("User authenticated",
		zap.String("user_id", identity.ID),
		zap.Bool("new_user", result.IsNewUser))
	return result, nil
}

// register creates the identity. Losing a signup race to the same email falls
// back to the winner's identity.
func (s *AuthService) register(ctx context.Context, email, name string) (*models.Identity, bool, error) {
	identity := models.Identity{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	err := s.directory.Create(ctx, identity)
	if err == nil {
		return &identity, true, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		s.logger.Error("Failed to register user", zap.String("email", email), zap.Error(err))
		return nil, false, err
	}
	existing, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
