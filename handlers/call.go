package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ferhatk/pazar/models"
	"github.com/ferhatk/pazar/pkg"
	"github.com/ferhatk/pazar/services"
)

// CallHandler, arama endpoint'lerini yöneten struct.
//
// Arama lifecycle'ı REST üzerinden yürür (initiate/accept/end/signal);
// bildirimler WS üzerinden gider. Signaling POST'u senkron doğrulama
// sağlar — geçersiz CallId veya yabancı kullanıcı anında hata alır.
type CallHandler struct {
	callService services.CallService
}

// NewCallHandler, constructor.
func NewCallHandler(callService services.CallService) *CallHandler {
	return &CallHandler{callService: callService}
}

// Initiate godoc
// POST /api/calls/initiate
// Body: { "chat_id": "...", "receiver_id": "...", "call_type": "voice"|"video" }
//
// Receiver online ise incoming_call bildirimi gider ve kayıt ringing olur;
// offline ise bildirim düşer, kayıt initiated kalır — response'taki status
// hangisinin olduğunu söyler.
func (h *CallHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	var req models.InitiateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := h.callService.InitiateCall(r.Context(), user.ID, req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, call)
}

// Accept godoc
// POST /api/calls/{id}/accept
// Sadece receiver çağırabilir; ringing → active.
func (h *CallHandler) Accept(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	callID := r.PathValue("id")

	call, err := h.callService.AcceptCall(r.Context(), user.ID, callID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, call)
}

// End godoc
// POST /api/calls/{id}/end
// Body: { "duration": 42 }
// Reject, cancel ve normal kapatma aynı endpoint'tir. İdempotent.
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	callID := r.PathValue("id")

	var req models.EndCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := h.callService.EndCall(r.Context(), user.ID, callID, req.Duration)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, call)
}

// Signal godoc
// POST /api/calls/{id}/signal
// Body: { "type": "offer"|"answer"|"ice-candidate", "sdp": "...", "candidate": "..." }
// Server içeriğe bakmaz — karşı tarafa opak relay eder.
func (h *CallHandler) Signal(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	callID := r.PathValue("id")

	var req models.SendSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.callService.RelaySignal(r.Context(), user.ID, callID, req); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "signal relayed"})
}

// History godoc
// GET /api/chats/{id}/calls?limit={n}
// Chat'in arama geçmişi (en yeni önce).
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	chatID := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	calls, err := h.callService.GetCallHistory(r.Context(), user.ID, chatID, limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, calls)
}
