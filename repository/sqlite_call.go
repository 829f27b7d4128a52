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

// sqliteCallRepo, CallRepository interface'inin SQLite implementasyonu.
type sqliteCallRepo struct {
	db database.TxQuerier
}

// NewSQLiteCallRepo, constructor.
func NewSQLiteCallRepo(db database.TxQuerier) CallRepository {
	return &sqliteCallRepo{db: db}
}

func (r *sqliteCallRepo) Create(ctx context.Context, call *models.Call) error {
	query := `
		INSERT INTO calls (id, chat_id, caller_id, receiver_id, call_type, status)
		VALUES (lower(hex(randomblob(8))), ?, ?, ?, ?, 'initiated')
		RETURNING id, status, created_at`

	err := r.db.QueryRowContext(ctx, query,
		call.ChatID,
		call.CallerID,
		call.ReceiverID,
		call.CallType,
	).Scan(&call.ID, &call.Status, &call.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

func (r *sqliteCallRepo) GetByID(ctx context.Context, id string) (*models.Call, error) {
	query := `
		SELECT id, chat_id, caller_id, receiver_id, call_type, status, created_at, started_at, duration
		FROM calls WHERE id = ?`

	call := &models.Call{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&call.ID, &call.ChatID, &call.CallerID, &call.ReceiverID,
		&call.CallType, &call.Status, &call.CreatedAt, &call.StartedAt, &call.Duration,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: call not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

func (r *sqliteCallRepo) MarkRinging(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = 'ringing' WHERE id = ? AND status = 'initiated'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark call ringing: %w", err)
	}
	return rowsAffected(result)
}

func (r *sqliteCallRepo) MarkActive(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = 'active', started_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'ringing'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark call active: %w", err)
	}
	return rowsAffected(result)
}

func (r *sqliteCallRepo) MarkEnded(ctx context.Context, id string, duration int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = 'ended', duration = ?
		 WHERE id = ? AND status != 'ended'`, duration, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark call ended: %w", err)
	}
	return rowsAffected(result)
}

func (r *sqliteCallRepo) GetActiveForUser(ctx context.Context, userID string) (*models.Call, error) {
	query := `
		SELECT id, chat_id, caller_id, receiver_id, call_type, status, created_at, started_at, duration
		FROM calls
		WHERE status != 'ended' AND (caller_id = ? OR receiver_id = ?)
		ORDER BY created_at DESC
		LIMIT 1`

	call := &models.Call{}
	err := r.db.QueryRowContext(ctx, query, userID, userID).Scan(
		&call.ID, &call.ChatID, &call.CallerID, &call.ReceiverID,
		&call.CallType, &call.Status, &call.CreatedAt, &call.StartedAt, &call.Duration,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Devam eden arama yok
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active call for user: %w", err)
	}

	return call, nil
}

func (r *sqliteCallRepo) ListForChat(ctx context.Context, chatID string, limit int) ([]models.Call, error) {
	query := `
		SELECT id, chat_id, caller_id, receiver_id, call_type, status, created_at, started_at, duration
		FROM calls
		WHERE chat_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls for chat: %w", err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		var call models.Call
		if err := rows.Scan(
			&call.ID, &call.ChatID, &call.CallerID, &call.ReceiverID,
			&call.CallType, &call.Status, &call.CreatedAt, &call.StartedAt, &call.Duration,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calls: %w", err)
	}

	if calls == nil {
		calls = []models.Call{}
	}
	return calls, nil
}

// rowsAffected, guard'lı UPDATE'in satır etkileyip etkilemediğini döner.
func rowsAffected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n > 0, nil
}
