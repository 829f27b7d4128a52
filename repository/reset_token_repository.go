package repository

import (
	"context"

	"github.com/ferhatk/pazar/models"
)

// ResetTokenRepository, şifre sıfırlama token'ları için interface.
// Token'lar tek kullanımlıktır — doğrulandıktan sonra silinir.
type ResetTokenRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) error
}
