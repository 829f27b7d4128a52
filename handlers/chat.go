package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
	"github.com/ferhatk/pazar/services"
)

// ChatHandler, chat endpoint'lerini yöneten struct.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler, constructor.
func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// createChatRequest, POST /api/chats body'si.
type createChatRequest struct {
	UserID string `json:"user_id"`
}

// List godoc
// GET /api/chats
// Kullanıcının tüm chat'lerini listeler (karşı taraf bilgisiyle).
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chats)
}

// CreateOrGet godoc
// POST /api/chats
// Karşı hesapla olan kanalı bul veya oluştur.
//
// Body: { "user_id": "target_user_id" }
func (h *ChatHandler) CreateOrGet(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	chat, err := h.chatService.CreateOrGetChat(r.Context(), user.ID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chat)
}

// SendMessage godoc
// POST /api/chats/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chatID := r.PathValue("id")

	var req models.CreateChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatService.SendMessage(r.Context(), user.ID, chatID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, msg)
}

// GetMessages godoc
// GET /api/chats/{id}/messages?before={messageID}&limit={n}
// Cursor-based pagination — before verilirse o mesajdan eski mesajlar gelir.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chatID := r.PathValue("id")
	beforeID := r.URL.Query().Get("before")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.chatService.GetMessages(r.Context(), user.ID, chatID, beforeID, limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, page)
}

// MarkRead godoc
// POST /api/chats/{id}/read
// Karşı tarafın gönderdiği okunmamış mesajları okundu yapar.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chatID := r.PathValue("id")

	if err := h.chatService.MarkRead(r.Context(), user.ID, chatID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "marked as read"})
}
