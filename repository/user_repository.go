// Package repository, veritabanı erişim katmanını tanımlar.
//
// Repository Pattern: veritabanı işlemleri (CRUD) interface arkasına saklanır.
// Service katmanı doğrudan SQL yazmaz — interface üzerinden çalışır.
//
// Neden interface?
// 1. Test: Fake repository ile DB olmadan test edilebilir
// 2. Esneklik: SQLite'tan başka bir DB'ye geçiş sadece yeni implementasyon ister
// 3. Dependency Inversion: Service, concrete struct'a değil interface'e bağımlı
//
// Go'da interface implicit'tir — struct, method'ları implement ediyorsa
// otomatik olarak interface'i sağlar.
package repository

import (
	"context"

	"github.com/ferhatk/pazar/models"
)

// UserRepository, hesap veritabanı işlemleri için interface.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdatePassword, kullanıcının şifre hash'ini günceller.
	// Şifre sıfırlama akışında çağrılır — yeni bcrypt hash alır.
	UpdatePassword(ctx context.Context, userID string, newPasswordHash string) error
}
