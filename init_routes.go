// Package main — HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar.
// Middleware chain helper'ı burada tanımlıdır:
//   - auth: JWT token doğrulaması
package main

import (
	"net/http"

	"github.com/ferhatk/pazar/middleware"
	"github.com/ferhatk/pazar/repository"
	"github.com/ferhatk/pazar/services"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı: Literal path'ler parametrik path'lerden ÖNCE tanımlanmalı.
// Örnek: "/api/calls/initiate" → "/api/calls/{id}/accept" öncesinde,
// yoksa Go router "initiate" kelimesini bir id olarak yorumlar.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	authService services.AuthService,
	userRepo repository.UserRepository,
) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(authService, userRepo)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}

	// Auth — public endpoint'ler (token gerekmez)
	mux.HandleFunc("POST /api/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.HandleFunc("POST /api/auth/forgot-password", h.Auth.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", h.Auth.ResetPassword)

	// User
	mux.Handle("GET /api/users/me", auth(h.Auth.Me))

	// Chats — alıcı-satıcı kanalları
	mux.Handle("GET /api/chats", auth(h.Chat.List))
	mux.Handle("POST /api/chats", auth(h.Chat.CreateOrGet))
	mux.Handle("GET /api/chats/{id}/messages", auth(h.Chat.GetMessages))
	mux.Handle("POST /api/chats/{id}/messages", auth(h.Chat.SendMessage))
	mux.Handle("POST /api/chats/{id}/read", auth(h.Chat.MarkRead))
	mux.Handle("GET /api/chats/{id}/calls", auth(h.Call.History))

	// Calls — lifecycle REST üzerinden, bildirimler WS üzerinden
	mux.Handle("POST /api/calls/initiate", auth(h.Call.Initiate))
	mux.Handle("POST /api/calls/{id}/accept", auth(h.Call.Accept))
	mux.Handle("POST /api/calls/{id}/end", auth(h.Call.End))
	mux.Handle("POST /api/calls/{id}/signal", auth(h.Call.Signal))

	// WebSocket — token query parameter ile authenticate edilir
	//
	// Neden auth middleware kullanmıyoruz?
	// WebSocket upgrade sırasında tarayıcılar custom HTTP header gönderemez.
	// Bu yüzden JWT token URL query parameter olarak gönderilir:
	//   ws://server/ws?token=JWT_TOKEN
	// WS handler kendi içinde token doğrulaması yapar.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
