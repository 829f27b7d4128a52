package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, JWT access token'ın payload'ı.
//
// Server her request'te token imzasını doğrular — DB'ye gitmeden
// kullanıcının kim olduğunu bilir. WebSocket handler da aynı claims'i
// kullanır (?token= query parameter üzerinden).
//
// models paketinde tanımlıdır çünkü birden fazla katman (services, ws,
// middleware) kullanır ve her katman models'e bağımlı olabilir —
// circular dependency oluşmaz.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
