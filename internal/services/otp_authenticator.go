package services

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/models"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
	"go.uber.org/zap"
)

var otpCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)

// OtpSettings are the policy knobs of the authenticator.
type OtpSettings struct {
	TTL         time.Duration
	MaxAttempts int
	Secret      []byte
}

// OtpAuthenticator issues and verifies email one-time codes. At most one code
// is outstanding per email; issuing again replaces it.
type OtpAuthenticator struct {
	store    store.OtpStore
	mailer   Mailer
	settings OtpSettings
	logger   *zap.Logger
	now      func() time.Time
	generate func() (string, error)
}

type OtpOption func(*OtpAuthenticator)

func WithOtpClock(now func() time.Time) OtpOption {
	return func(a *OtpAuthenticator) { a.now = now }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) OtpOption {
	return func(a *OtpAuthenticator) { a.generate = gen }
}

func NewOtpAuthenticator(st store.OtpStore, mailer Mailer, settings OtpSettings, logger *zap.Logger, opts ...OtpOption) *OtpAuthenticator {
	a := &OtpAuthenticator{
		store:    st,
		mailer:   mailer,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		generate: utils.GenerateOTP,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue creates a fresh code for email, stores its digest and mails it.
// The record is kept when delivery fails so a retry of Issue replaces it.
func (a *OtpAuthenticator) Issue(ctx context.Context, email string) (time.Time, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return time.Time{}, err
	}

	code, err := a.generate()
	if err != nil {
		return time.Time{}, err
	}
	digest, err := utils.DigestOTP(a.settings.Secret, email, code)
	if err != nil {
		return time.Time{}, err
	}

	now := a.now().UTC()
	record := &models.OtpRecord{
		CodeDigest: digest,
		IssuedAt:   now,
		ExpiresAt:  now.Add(a.settings.TTL),
	}
	err = a.store.Mutate(ctx, email, func(*models.OtpRecord) (*models.OtpRecord, error) {
		return record, nil
	})
	if err != nil {
		a.logger.Error("Failed to store OTP", zap.String("email", email), zap.Error(err))
		return time.Time{}, err
	}

	if a.mailer == nil {
		a.logger.Error("OTP mailer is not configured", zap.String("email", email))
		return time.Time{}, apperr.Delivery("Could not send verification code", apperr.ErrNotConfigured)
	}
	if err := a.mailer.SendOTP(ctx, email, code, record.ExpiresAt); err != nil {
		if errors.Is(err, apperr.ErrNotConfigured) {
			a.logger.Error("OTP mailer is not configured", zap.String("email", email))
		} else {
			a.logger.Error("Failed to deliver OTP", zap.String("email", email), zap.Error(err))
		}
		return time.Time{}, apperr.Delivery("Could not send verification code", err)
	}

	a.logger.Info("OTP issued", zap.String("email", email), zap.Time("expires_at", record.ExpiresAt))
	return record.ExpiresAt, nil
}

// Verify checks code against the outstanding record for email. Every outcome
// other than a wrong guess with attempts left clears the record.
func (a *OtpAuthenticator) Verify(ctx context.Context, email, code string) error {
	if err := utils.ValidateEmail(email); err != nil {
		return err
	}
	if !otpCodeRegex.MatchString(code) {
		return apperr.Validation("otp", "Code must be 6 digits")
	}

	now := a.now().UTC()
	maxAttempts := a.settings.MaxAttempts

	err := a.store.Mutate(ctx, email, func(cur *models.OtpRecord) (*models.OtpRecord, error) {
		if cur == nil {
			return nil, apperr.NotFound("No verification code was issued for this email")
		}
		if now.After(cur.ExpiresAt) {
			return nil, apperr.Expired("Verification code has expired")
		}
		if cur.AttemptsUsed >= maxAttempts {
			return nil, apperr.AttemptsExhausted("Too many incorrect attempts")
		}

		ok, err := utils.VerifyOTP(a.settings.Secret, email, code, cur.CodeDigest)
		if err != nil {
			return cur, err
		}
		if ok {
			return nil, nil
		}

		next := *cur
		next.AttemptsUsed++
		if next.AttemptsUsed >= maxAttempts {
			return nil, apperr.AttemptsExhausted("Too many incorrect attempts")
		}
		return &next, apperr.InvalidCode(maxAttempts - next.AttemptsUsed)
	})

	switch kind := apperr.KindOf(err); kind {
	case "":
		a.logger.Info("OTP verified", zap.String("email", email))
	case apperr.KindNotFound, apperr.KindExpired, apperr.KindInvalidCode, apperr.KindAttemptsExhausted:
		a.logger.Info("OTP rejected", zap.String("email", email), zap.String("kind", string(kind)))
	default:
		a.logger.Error("OTP verification failed", zap.String("email", email), zap.Error(err))
	}
	return err
}
