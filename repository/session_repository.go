package repository

import (
	"context"

	"github.com/ferhatk/pazar/models"
)

// SessionRepository, refresh token oturumları için interface.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByRefreshToken(ctx context.Context, token string) (*models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID, kullanıcının tüm oturumlarını kapatır.
	// Şifre sıfırlama sonrası çağrılır — eski refresh token'lar geçersiz olmalı.
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) error
}
