// Package main — Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
//
// ÖNEMLİ: callService, Hub callback'lerinden ÖNCE oluşturulmalı —
// OnUserDisconnect callback'i arama cleanup'ı için callService'e ihtiyaç duyar.
package main

import (
	"database/sql"
	"log"
	"time"

	"github.com/ferhatk/pazar/config"
	"github.com/ferhatk/pazar/database"
	"github.com/ferhatk/pazar/pkg/email"
	"github.com/ferhatk/pazar/pkg/ratelimit"
	"github.com/ferhatk/pazar/repository"
	"github.com/ferhatk/pazar/services"
	"github.com/ferhatk/pazar/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth services.AuthService
	Chat services.ChatService
	Call services.CallService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	Login *ratelimit.LoginRateLimiter
}

// initServices, tüm service'leri ve rate limiter'ları oluşturur.
// hub, service'ler arası paylaşılan dependency'dir (EventPublisher interface).
func initServices(db *sql.DB, repos *Repositories, hub ws.EventPublisher, cfg *config.Config) (*Services, *RateLimiters) {
	// ─── Email service (opsiyonel) ───
	var emailSender email.EmailSender
	if cfg.Email.ResendAPIKey != "" && cfg.Email.FromEmail != "" && cfg.Email.AppURL != "" {
		emailSender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, cfg.Email.AppURL)
		log.Printf("[main] email service enabled (from=%s)", cfg.Email.FromEmail)
	} else {
		log.Println("[main] email service disabled (RESEND_API_KEY, RESEND_FROM or APP_URL not set)")
	}

	authService := services.NewAuthService(
		repos.User, repos.Session, repos.ResetToken, emailSender,
		cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry,
	)

	// ChatService, transaction içinde tx-scoped repo üretebilmek için
	// repo instance'ı yerine factory alır.
	chatService := services.NewChatService(
		db,
		func(q database.TxQuerier) repository.ChatRepository {
			return repository.NewSQLiteChatRepo(q)
		},
		repos.User,
		hub,
	)

	callService := services.NewCallService(repos.Call, repos.Chat, repos.User, hub)

	// ─── Rate Limiters ───
	loginLimiter := ratelimit.NewLoginRateLimiter(5, 2*time.Minute)

	svcs := &Services{
		Auth: authService,
		Chat: chatService,
		Call: callService,
	}

	limiters := &RateLimiters{
		Login: loginLimiter,
	}

	return svcs, limiters
}
