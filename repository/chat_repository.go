package repository

import (
	"context"

	"github.com/ferhatk/pazar/models"
)

// ChatRepository, alıcı-satıcı sohbet kanalları ve mesajları için interface.
type ChatRepository interface {
	// GetByParticipants, verilen alıcı-satıcı çifti arasındaki chat'i döner.
	// Chat yoksa (nil, nil) döner — hata değil, get-or-create akışı için.
	GetByParticipants(ctx context.Context, buyerID, sellerID string) (*models.Chat, error)
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	Create(ctx context.Context, chat *models.Chat) error
	// ListForUser, kullanıcının tüm chat'lerini karşı taraf bilgisiyle döner.
	ListForUser(ctx context.Context, userID string) ([]models.ChatWithUser, error)

	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	// GetMessages, cursor-based pagination ile mesajları döner (created_at DESC).
	GetMessages(ctx context.Context, chatID string, beforeID string, limit int) ([]models.ChatMessage, error)
	// MarkMessagesRead, chat'te karşı tarafın gönderdiği okunmamış mesajları okundu yapar.
	MarkMessagesRead(ctx context.Context, chatID, readerID string) error
	TouchLastMessageAt(ctx context.Context, chatID string) error
}
