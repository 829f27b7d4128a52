package repository

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferhatk/pazar/database"
	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		t.Fatalf("sub migrations fs: %v", err)
	}

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), migrations)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedCallFixture, foreign key'lerin istediği kullanıcı ve sohbet satırlarını ekler.
func seedCallFixture(t *testing.T, db *database.DB) {
	t.Helper()

	for _, u := range []struct{ id, username, role string }{
		{"buyer-1", "ayse", "buyer"},
		{"seller-1", "kilim-store", "seller"},
	} {
		if _, err := db.Conn.Exec(
			`INSERT INTO users (id, username, password_hash, role) VALUES (?, ?, 'x', ?)`,
			u.id, u.username, u.role,
		); err != nil {
			t.Fatalf("seed user %s: %v", u.id, err)
		}
	}

	if _, err := db.Conn.Exec(
		`INSERT INTO chats (id, buyer_id, seller_id) VALUES ('chat-1', 'buyer-1', 'seller-1')`,
	); err != nil {
		t.Fatalf("seed chat: %v", err)
	}
}

func createTestCall(t *testing.T, repo CallRepository) *models.Call {
	t.Helper()

	call := &models.Call{
		ChatID:     "chat-1",
		CallerID:   "buyer-1",
		ReceiverID: "seller-1",
		CallType:   models.CallTypeVoice,
	}
	if err := repo.Create(context.Background(), call); err != nil {
		t.Fatalf("create call: %v", err)
	}
	return call
}

func TestCallRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)

	call := createTestCall(t, repo)

	if call.ID == "" {
		t.Fatal("created call has no id")
	}
	if call.Status != models.CallStatusInitiated {
		t.Errorf("status = %s, want initiated", call.Status)
	}

	got, err := repo.GetByID(context.Background(), call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.ChatID != "chat-1" || got.CallerID != "buyer-1" || got.ReceiverID != "seller-1" {
		t.Errorf("participants = %s/%s in %s, want buyer-1/seller-1 in chat-1",
			got.CallerID, got.ReceiverID, got.ChatID)
	}
	if got.StartedAt != nil {
		t.Error("started_at set before call is active")
	}
	if got.Duration != 0 {
		t.Errorf("duration = %d, want 0", got.Duration)
	}
}

func TestCallRepo_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLiteCallRepo(db.Conn)

	_, err := repo.GetByID(context.Background(), "no-such-call")
	if !errors.Is(err, pkg.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCallRepo_MarkRinging_OnlyFromInitiated(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)
	ctx := context.Background()

	call := createTestCall(t, repo)

	ok, err := repo.MarkRinging(ctx, call.ID)
	if err != nil || !ok {
		t.Fatalf("MarkRinging = (%v, %v), want (true, nil)", ok, err)
	}

	// İkinci geçiş denemesi guard'a takılır.
	ok, err = repo.MarkRinging(ctx, call.ID)
	if err != nil {
		t.Fatalf("second MarkRinging: %v", err)
	}
	if ok {
		t.Error("MarkRinging succeeded on a ringing call")
	}
}

func TestCallRepo_MarkActive_OnlyFromRinging(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)
	ctx := context.Background()

	call := createTestCall(t, repo)

	// initiated → active atlanamaz.
	ok, err := repo.MarkActive(ctx, call.ID)
	if err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	if ok {
		t.Error("MarkActive succeeded on an initiated call")
	}

	if _, err := repo.MarkRinging(ctx, call.ID); err != nil {
		t.Fatalf("MarkRinging: %v", err)
	}
	ok, err = repo.MarkActive(ctx, call.ID)
	if err != nil || !ok {
		t.Fatalf("MarkActive = (%v, %v), want (true, nil)", ok, err)
	}

	got, err := repo.GetByID(ctx, call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Status != models.CallStatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("started_at not set on active call")
	}
}

func TestCallRepo_MarkEnded_Idempotent(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)
	ctx := context.Background()

	call := createTestCall(t, repo)

	ok, err := repo.MarkEnded(ctx, call.ID, 42)
	if err != nil || !ok {
		t.Fatalf("MarkEnded = (%v, %v), want (true, nil)", ok, err)
	}

	// Ended kayıt bir daha mutate edilmez — ikinci end'in duration'ı yazılmaz.
	ok, err = repo.MarkEnded(ctx, call.ID, 99)
	if err != nil {
		t.Fatalf("second MarkEnded: %v", err)
	}
	if ok {
		t.Error("MarkEnded succeeded on an ended call")
	}

	got, err := repo.GetByID(ctx, call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Status != models.CallStatusEnded {
		t.Errorf("status = %s, want ended", got.Status)
	}
	if got.Duration != 42 {
		t.Errorf("duration = %d, want 42", got.Duration)
	}
}

func TestCallRepo_GetActiveForUser(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)
	ctx := context.Background()

	got, err := repo.GetActiveForUser(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("GetActiveForUser: %v", err)
	}
	if got != nil {
		t.Errorf("active call before any exists = %+v, want nil", got)
	}

	call := createTestCall(t, repo)

	// Ended olmayan kayıt her iki katılımcı için de "devam eden" sayılır.
	for _, userID := range []string{"buyer-1", "seller-1"} {
		got, err = repo.GetActiveForUser(ctx, userID)
		if err != nil {
			t.Fatalf("GetActiveForUser(%s): %v", userID, err)
		}
		if got == nil || got.ID != call.ID {
			t.Errorf("active call for %s = %+v, want %s", userID, got, call.ID)
		}
	}

	if _, err := repo.MarkEnded(ctx, call.ID, 0); err != nil {
		t.Fatalf("MarkEnded: %v", err)
	}
	got, err = repo.GetActiveForUser(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("GetActiveForUser after end: %v", err)
	}
	if got != nil {
		t.Errorf("active call after end = %+v, want nil", got)
	}
}

func TestCallRepo_ListForChat(t *testing.T) {
	db := newTestDB(t)
	seedCallFixture(t, db)
	repo := NewSQLiteCallRepo(db.Conn)
	ctx := context.Background()

	// created_at saniye çözünürlüklü — sıralama testi için farklı zamanlar yazılır.
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		call := createTestCall(t, repo)
		if _, err := db.Conn.Exec(
			`UPDATE calls SET created_at = ? WHERE id = ?`,
			base.Add(time.Duration(i)*time.Minute), call.ID,
		); err != nil {
			t.Fatalf("set created_at: %v", err)
		}
		ids = append(ids, call.ID)
	}

	calls, err := repo.ListForChat(ctx, "chat-1", 2)
	if err != nil {
		t.Fatalf("ListForChat: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("len = %d, want 2 (limit)", len(calls))
	}
	// En yeni önce.
	if calls[0].ID != ids[2] || calls[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want [%s %s]", calls[0].ID, calls[1].ID, ids[2], ids[1])
	}

	// Araması olmayan sohbet boş (nil değil) slice döner.
	empty, err := repo.ListForChat(ctx, "chat-without-calls", 10)
	if err != nil {
		t.Fatalf("ListForChat empty: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty chat history = %v, want []", empty)
	}
}
