// Package main — WebSocket Hub callback wire-up.
//
// Bu callback neden burada (main package'da)?
// Hub ws paketinde yaşıyor, ama arama cleanup'ı service katmanında.
// Hub'ın service'lere bağımlı olmasını istemiyoruz (Dependency Inversion).
// main package wire-up noktasıdır — tüm katmanları birbirine bağlar.
//
// Callback, Hub.Run() goroutine'inden ayrı goroutine'de çalışır
// (removeClient içinde `go callback()` ile çağrılır),
// böylece Hub'ın mutex Lock'u ile broadcast RLock'u çakışmaz.
package main

import (
	"github.com/ferhatk/pazar/services"
	"github.com/ferhatk/pazar/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini register eder.
//
// Kullanıcının son WS bağlantısı koptuğunda devam eden araması varsa
// sonlandırılır ve karşı tarafa call_ended bildirilir — kapanmış tarayıcı
// sekmesi karşı tarafı sonsuza kadar "çalıyor" ekranında bırakmaz.
func registerHubCallbacks(hub *ws.Hub, callService services.CallService) {
	hub.OnUserDisconnect(func(userID string) {
		callService.HandleDisconnect(userID)
	})
}
