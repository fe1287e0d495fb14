package services

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/resendlabs/resend-go"
)

// Mailer delivers one-time codes.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// ResendMailer sends codes through the Resend API.
type ResendMailer struct {
	resend    *resend.Client
	fromEmail string
	fromName  string
}

// NewResendMailer returns a mailer that reports ErrNotConfigured on every send
// when apiKey is empty. Each API call is bounded by timeout.
func NewResendMailer(apiKey, fromEmail, fromName string, timeout time.Duration) *ResendMailer {
	m := &ResendMailer{fromEmail: fromEmail, fromName: fromName}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		m.resend = resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)
	}
	return m
}

// SendOTP mails the code. The request is cancelled with ctx.
func (m *ResendMailer) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.resend == nil {
		return apperr.ErrNotConfigured
	}

	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	request := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail),
		To:      []string{email},
		Subject: "Your Krishi Advisor login code",
		Html:    otpEmailBody(code, minutes),
	}

	// Emails.Send has no context variant, so the request is built and performed here.
	req, err := m.resend.NewRequest(http.MethodPost, "emails", request)
	if err != nil {
		return fmt.Errorf("failed to build otp email request: %w", err)
	}
	var resp resend.SendEmailResponse
	if _, err := m.resend.Perform(req.WithContext(ctx), &resp); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

func otpEmailBody(code string, minutes int) string {
	return fmt.Sprintf(`<div style="font-family:sans-serif">
<p>Your login code is</p>
<p style="font-size:28px;letter-spacing:6px"><strong>%s</strong></p>
<p>It expires in %d minutes. If you did not ask for it you can ignore this email.</p>
</div>`, html.EscapeString(code), minutes)
}
