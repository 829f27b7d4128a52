// Package models — Chat domain modelleri.
//
// Chat, bir alıcı ile bir satıcı mağazası arasındaki özel mesajlaşma
// kanalıdır. Aramalar (Call) her zaman bir chat'e bağlıdır — iki hesap
// ancak aralarında chat varsa birbirini arayabilir.
//
// buyer_id + seller_id çifti üzerinde UNIQUE constraint vardır; aynı iki
// hesap arasında tek kanal oluşabilir.
package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Chat, alıcı-satıcı mesajlaşma kanalını temsil eder.
type Chat struct {
	ID            string     `json:"id"`
	BuyerID       string     `json:"buyer_id"`
	SellerID      string     `json:"seller_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"` // Nullable — henüz mesaj yoksa nil
}

// IsParticipant, kullanıcının bu chat'in tarafı olup olmadığını döner.
func (c *Chat) IsParticipant(userID string) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// OtherParty, chat'in verilen kullanıcı dışındaki katılımcısını döner.
func (c *Chat) OtherParty(userID string) string {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// ChatWithUser, chat bilgisi + karşı taraf kullanıcı bilgisi.
// Chat listesi render etmek için kullanılır.
type ChatWithUser struct {
	ID            string     `json:"id"`
	OtherUser     *User      `json:"other_user"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// ChatMessage, bir chat mesajını temsil eder.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`

	// JOIN ile doldurulan alan
	Author *User `json:"author,omitempty"`
}

// CreateChatMessageRequest, yeni chat mesajı gönderme isteği.
type CreateChatMessageRequest struct {
	Content string `json:"content"`
}

// Validate, CreateChatMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *CreateChatMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// ChatMessagePage, chat mesajları için cursor-based pagination response.
type ChatMessagePage struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}
