// Package services — ChatService: alıcı-satıcı mesajlaşma iş mantığı.
//
// Chat kanalları get-or-create semantiğiyle açılır: alıcı bir mağazayla
// ilk kez iletişime geçtiğinde kanal oluşur, sonraki istekler mevcut
// kanalı döner. Aramalar (CallService) bu kanallara bağlıdır.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/ferhatk/pazar/database"
	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
	"github.com/ferhatk/pazar/repository"
	"github.com/ferhatk/pazar/ws"
)

// defaultMessagePageSize, mesaj listeleme için varsayılan sayfa boyutu.
const defaultMessagePageSize = 50

// ChatRepoFactory, verilen querier üzerinde çalışan bir ChatRepository üretir.
// Normal operasyonlarda *sql.DB, transaction içinde *sql.Tx geçilir.
type ChatRepoFactory func(db database.TxQuerier) repository.ChatRepository

// ChatService, chat operasyonları için iş mantığı interface'i.
type ChatService interface {
	// CreateOrGetChat, iki hesap arasındaki kanalı döner; yoksa oluşturur.
	// Kanal her zaman bir alıcı ile bir satıcı arasındadır.
	CreateOrGetChat(ctx context.Context, userID, otherUserID string) (*models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatWithUser, error)
	SendMessage(ctx context.Context, userID, chatID string, req *models.CreateChatMessageRequest) (*models.ChatMessage, error)
	GetMessages(ctx context.Context, userID, chatID, beforeID string, limit int) (*models.ChatMessagePage, error)
	MarkRead(ctx context.Context, userID, chatID string) error
}

// chatService, ChatService'in private implementasyonu.
type chatService struct {
	db         *sql.DB
	newRepo    ChatRepoFactory
	userGetter UserInfoGetter
	hub        ws.EventPublisher
}

// NewChatService, constructor.
func NewChatService(
	db *sql.DB,
	newRepo ChatRepoFactory,
	userGetter UserInfoGetter,
	hub ws.EventPublisher,
) ChatService {
	return &chatService{
		db:         db,
		newRepo:    newRepo,
		userGetter: userGetter,
		hub:        hub,
	}
}

// CreateOrGetChat, alıcı-satıcı kanalını döner; yoksa oluşturur.
func (s *chatService) CreateOrGetChat(ctx context.Context, userID, otherUserID string) (*models.Chat, error) {
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot chat with yourself", pkg.ErrBadRequest)
	}

	me, err := s.userGetter.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	other, err := s.userGetter.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	// Kanal her zaman (buyer, seller) çifti olarak saklanır.
	var buyerID, sellerID string
	switch {
	case me.Role == models.UserRoleBuyer && other.Role == models.UserRoleSeller:
		buyerID, sellerID = me.ID, other.ID
	case me.Role == models.UserRoleSeller && other.Role == models.UserRoleBuyer:
		buyerID, sellerID = other.ID, me.ID
	default:
		return nil, fmt.Errorf("%w: chat must be between a buyer and a seller", pkg.ErrBadRequest)
	}

	// Get-or-create tek transaction'da — eşzamanlı iki istek aynı çifte
	// iki kanal açamaz (UNIQUE constraint + tx).
	var chat *models.Chat
	var created bool
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.newRepo(tx)

		existing, err := repo.GetByParticipants(ctx, buyerID, sellerID)
		if err != nil {
			return err
		}
		if existing != nil {
			chat = existing
			return nil
		}

		chat = &models.Chat{BuyerID: buyerID, SellerID: sellerID}
		created = true
		return repo.Create(ctx, chat)
	})
	if err != nil {
		return nil, err
	}

	if created {
		log.Printf("[chat] created: buyer=%s seller=%s chat=%s", buyerID, sellerID, chat.ID)
		s.hub.BroadcastToUser(otherUserID, ws.Event{Op: ws.OpChatCreate, Data: chat})
	}

	return chat, nil
}

// ListChats, kullanıcının kanallarını karşı taraf bilgisiyle döner.
func (s *chatService) ListChats(ctx context.Context, userID string) ([]models.ChatWithUser, error) {
	return s.newRepo(s.db).ListForUser(ctx, userID)
}

// SendMessage, chat'e mesaj gönderir ve karşı tarafa broadcast eder.
// Mesaj yazma + last_message_at güncellemesi tek transaction'dır.
func (s *chatService) SendMessage(ctx context.Context, userID, chatID string, req *models.CreateChatMessageRequest) (*models.ChatMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	chat, err := s.newRepo(s.db).GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not part of this chat", pkg.ErrForbidden)
	}

	msg := &models.ChatMessage{
		ChatID:   chatID,
		SenderID: userID,
		Content:  req.Content,
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.newRepo(tx)
		if err := repo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return repo.TouchLastMessageAt(ctx, chatID)
	})
	if err != nil {
		return nil, err
	}

	author, err := s.userGetter.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	author.PasswordHash = ""
	msg.Author = author

	s.hub.BroadcastToUser(chat.OtherParty(userID), ws.Event{
		Op:   ws.OpChatMessageCreate,
		Data: msg,
	})

	return msg, nil
}

// GetMessages, cursor-based pagination ile mesajları döner.
// Repo DESC sıralı getirir; burada kronolojik sıraya çevrilir.
func (s *chatService) GetMessages(ctx context.Context, userID, chatID, beforeID string, limit int) (*models.ChatMessagePage, error) {
	repo := s.newRepo(s.db)

	chat, err := repo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, fmt.Errorf("%w: not part of this chat", pkg.ErrForbidden)
	}

	if limit <= 0 || limit > 100 {
		limit = defaultMessagePageSize
	}

	// limit+1 çekilir — fazladan kayıt geldiyse daha eski sayfa var demektir.
	messages, err := repo.GetMessages(ctx, chatID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := false
	if len(messages) > limit {
		hasMore = true
		messages = messages[:limit]
	}

	// DESC → kronolojik
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return &models.ChatMessagePage{Messages: messages, HasMore: hasMore}, nil
}

// MarkRead, karşı tarafın gönderdiği okunmamış mesajları okundu yapar.
func (s *chatService) MarkRead(ctx context.Context, userID, chatID string) error {
	repo := s.newRepo(s.db)

	chat, err := repo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsParticipant(userID) {
		return fmt.Errorf("%w: not part of this chat", pkg.ErrForbidden)
	}

	return repo.MarkMessagesRead(ctx, chatID, userID)
}
