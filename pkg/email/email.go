// Package email, şifre sıfırlama mail'lerinin gönderimini soyutlar.
//
// Service katmanı EmailSender interface'ine bağımlıdır; Resend API detayları
// resendSender içinde kalır. Sağlayıcı değişirse sadece yeni bir implementasyon
// yazıp wire-up'ta değiştirmek yeterli.
package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// EmailSender, email gönderimi için interface.
type EmailSender interface {
	// SendPasswordReset, kullanıcıya şifre sıfırlama linki içeren email gönderir.
	// token plaintext'tir — DB'de sadece SHA256 hash'i tutulur.
	SendPasswordReset(ctx context.Context, toEmail, token string) error
}

// resendSender, Resend API ile gönderen EmailSender implementasyonu.
type resendSender struct {
	client    *resend.Client
	fromEmail string // Doğrulanmış domain altında olmalı (ör: noreply@pazar.app)
	appURL    string // Reset link'lerinde kullanılan public URL
}

// NewResendSender, Resend client'ı ile yeni bir EmailSender oluşturur.
func NewResendSender(apiKey, fromEmail, appURL string) EmailSender {
	return &resendSender{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		appURL:    appURL,
	}
}

// SendPasswordReset, {appURL}/reset-password?token={token} linkini içeren
// HTML email'i gönderir. Link 20 dakika geçerlidir (service katmanı belirler).
func (s *resendSender) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.appURL, token)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#f8f5f0;font-family:Arial,Helvetica,sans-serif;">
  <table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f8f5f0;padding:40px 0;">
    <tr>
      <td align="center">
        <table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;padding:40px;border:1px solid #e7e0d6;">
          <tr>
            <td>
              <h1 style="color:#1f2937;font-size:24px;margin:0 0 8px 0;">pazar</h1>
              <h2 style="color:#1f2937;font-size:18px;margin:0 0 24px 0;">Password Reset Request</h2>
              <p style="color:#6b7280;font-size:15px;line-height:1.6;margin:0 0 24px 0;">
                We received a request to reset your password. Click the button below to choose a new password.
              </p>
              <table cellpadding="0" cellspacing="0" style="margin:0 0 24px 0;">
                <tr>
                  <td style="background-color:#d97706;border-radius:6px;padding:12px 32px;">
                    <a href="%s" style="color:#ffffff;text-decoration:none;font-size:15px;font-weight:600;">
                      Reset Password
                    </a>
                  </td>
                </tr>
              </table>
              <p style="color:#9ca3af;font-size:13px;line-height:1.6;margin:0 0 16px 0;">
                This link will expire in 20 minutes. If you didn't request a password reset, you can safely ignore this email.
              </p>
              <p style="color:#9ca3af;font-size:13px;line-height:1.6;margin:0;word-break:break-all;">
                If the button doesn't work, copy and paste this link:<br>
                <a href="%s" style="color:#d97706;">%s</a>
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`, resetLink, resetLink, resetLink)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("pazar <%s>", s.fromEmail),
		To:      []string{toEmail},
		Subject: "Reset Your Password — pazar",
		Html:    html,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	return nil
}
