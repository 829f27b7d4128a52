package repository

import (
	"context"

	"github.com/ferhatk/pazar/models"
)

// CallRepository, arama kayıtları için interface.
//
// Status geçişleri WHERE guard'lı UPDATE'lerle yapılır — aynı aramaya
// eşzamanlı gelen iki istek (ör. accept + end) race'inde yalnızca biri
// satırı etkiler, diğeri affected=0 görür. Guard'lar lifecycle'ın tek
// yönlü olmasını DB seviyesinde garanti eder.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id string) (*models.Call, error)
	// MarkRinging, initiated → ringing geçişi. Arama initiated değilse false döner.
	MarkRinging(ctx context.Context, id string) (bool, error)
	// MarkActive, ringing → active geçişi; started_at set edilir.
	// Arama ringing değilse false döner.
	MarkActive(ctx context.Context, id string) (bool, error)
	// MarkEnded, herhangi bir non-terminal durumdan ended'a geçiş; duration yazılır.
	// Arama zaten ended ise false döner (idempotent end için).
	MarkEnded(ctx context.Context, id string, duration int) (bool, error)
	// GetActiveForUser, kullanıcının devam eden (ended olmayan) aramasını döner.
	// Yoksa (nil, nil) — busy kontrolü için.
	GetActiveForUser(ctx context.Context, userID string) (*models.Call, error)
	// ListForChat, chat'in arama geçmişini döner (en yeni önce).
	ListForChat(ctx context.Context, chatID string, limit int) ([]models.Call, error)
}
