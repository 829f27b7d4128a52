package models

import "time"

// PasswordResetToken, şifre sıfırlama token'ını temsil eder.
// Token'ın SHA256 hash'i saklanır — plaintext sadece email'de bulunur.
type PasswordResetToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
