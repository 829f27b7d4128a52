package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ferhatk/pazar/database"
	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
)

// sqliteChatRepo, ChatRepository interface'inin SQLite implementasyonu.
type sqliteChatRepo struct {
	db database.TxQuerier
}

// NewSQLiteChatRepo, constructor.
func NewSQLiteChatRepo(db database.TxQuerier) ChatRepository {
	return &sqliteChatRepo{db: db}
}

// ─── Chat Operations ───

func (r *sqliteChatRepo) GetByParticipants(ctx context.Context, buyerID, sellerID string) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, seller_id, created_at, last_message_at
		 FROM chats WHERE buyer_id = ? AND seller_id = ?`,
		buyerID, sellerID,
	).Scan(&chat.ID, &chat.BuyerID, &chat.SellerID, &chat.CreatedAt, &chat.LastMessageAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Chat yok — get-or-create akışında hata değil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat by participants: %w", err)
	}
	return &chat, nil
}

func (r *sqliteChatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, seller_id, created_at, last_message_at
		 FROM chats WHERE id = ?`,
		id,
	).Scan(&chat.ID, &chat.BuyerID, &chat.SellerID, &chat.CreatedAt, &chat.LastMessageAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (r *sqliteChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chats (id, buyer_id, seller_id)
		 VALUES (lower(hex(randomblob(8))), ?, ?)
		 RETURNING id, created_at`,
		chat.BuyerID, chat.SellerID,
	).Scan(&chat.ID, &chat.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: chat already exists", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// ListForUser, kullanıcının chat'lerini karşı taraf bilgisiyle döner.
// Karşı taraf CASE ile bulunup users tablosuyla JOIN edilir.
// Son mesaj alan chat üstte gelir.
func (r *sqliteChatRepo) ListForUser(ctx context.Context, userID string) ([]models.ChatWithUser, error) {
	query := `
		SELECT c.id, c.created_at, c.last_message_at,
			u.id, u.username, u.display_name, u.role
		FROM chats c
		JOIN users u ON u.id = CASE
			WHEN c.buyer_id = ? THEN c.seller_id
			ELSE c.buyer_id
		END
		WHERE c.buyer_id = ? OR c.seller_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.ChatWithUser
	for rows.Next() {
		var ch models.ChatWithUser
		var user models.User
		var displayName sql.NullString

		if err := rows.Scan(
			&ch.ID, &ch.CreatedAt, &ch.LastMessageAt,
			&user.ID, &user.Username, &displayName, &user.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}

		if displayName.Valid {
			user.DisplayName = &displayName.String
		}

		ch.OtherUser = &user
		chats = append(chats, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	if chats == nil {
		chats = []models.ChatWithUser{}
	}
	return chats, nil
}

// ─── Message Operations ───

func (r *sqliteChatRepo) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chat_messages (id, chat_id, sender_id, content)
		 VALUES (lower(hex(randomblob(8))), ?, ?, ?)
		 RETURNING id, created_at`,
		msg.ChatID, msg.SenderID, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

// GetMessages, cursor-based pagination ile mesajları döner.
// beforeID verilmişse o mesajdan eski mesajlar gelir.
// Mesajlar created_at DESC sıralı döner (service katmanında ters çevrilir).
func (r *sqliteChatRepo) GetMessages(ctx context.Context, chatID string, beforeID string, limit int) ([]models.ChatMessage, error) {
	var rows *sql.Rows
	var err error

	baseQuery := `
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.is_read, m.created_at,
			u.id, u.username, u.display_name, u.role
		FROM chat_messages m
		JOIN users u ON u.id = m.sender_id`

	if beforeID != "" {
		query := baseQuery + `
			WHERE m.chat_id = ?
			AND m.created_at < (SELECT created_at FROM chat_messages WHERE id = ?)
			ORDER BY m.created_at DESC
			LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, chatID, beforeID, limit)
	} else {
		query := baseQuery + `
			WHERE m.chat_id = ?
			ORDER BY m.created_at DESC
			LIMIT ?`
		rows, err = r.db.QueryContext(ctx, query, chatID, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var author models.User
		var displayName sql.NullString

		if err := rows.Scan(
			&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.IsRead, &msg.CreatedAt,
			&author.ID, &author.Username, &displayName, &author.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}

		if displayName.Valid {
			author.DisplayName = &displayName.String
		}

		msg.Author = &author
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

func (r *sqliteChatRepo) MarkMessagesRead(ctx context.Context, chatID, readerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_messages SET is_read = 1
		 WHERE chat_id = ? AND sender_id != ? AND is_read = 0`,
		chatID, readerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) TouchLastMessageAt(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_at = CURRENT_TIMESTAMP WHERE id = ?`,
		chatID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chat last_message_at: %w", err)
	}
	return nil
}
