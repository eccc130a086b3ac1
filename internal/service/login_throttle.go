package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LoginThrottle limita los intentos de login por cuenta y por IP de origen.
type LoginThrottle struct {
	perEmail RateLimiter
	perIP    RateLimiter
}

func NewLoginThrottle(perEmail, perIP RateLimiter) *LoginThrottle {
	return &LoginThrottle{perEmail: perEmail, perIP: perIP}
}

// NewMemoryLoginThrottle arma un throttle en memoria con la misma ventana para ambas claves.
func NewMemoryLoginThrottle(window time.Duration, perEmailMax, perIPMax int) *LoginThrottle {
	return NewLoginThrottle(NewMemoryRateLimiter(window, perEmailMax), NewMemoryRateLimiter(window, perIPMax))
}

// Check registra el intento. Devuelve ErrRateLimited si la IP o el email agotaron su cupo.
func (t *LoginThrottle) Check(ctx context.Context, email, clientIP string) error {
	if t == nil {
		return nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if t.perIP != nil && clientIP != "" && !t.perIP.Allow(ctx, clientIP) {
		return fmt.Errorf("%w: too many attempts from %s", ErrRateLimited, clientIP)
	}
	if t.perEmail != nil && !t.perEmail.Allow(ctx, normalizeEmail(email)) {
		return fmt.Errorf("%w: too many attempts for account", ErrRateLimited)
	}
	return nil
}

// Succeeded limpia el contador de la cuenta tras un login correcto.
// El de la IP se mantiene.
func (t *LoginThrottle) Succeeded(ctx context.Context, email string) {
	if t == nil || t.perEmail == nil {
		return
	}
	t.perEmail.Reset(ctx, normalizeEmail(email))
}
