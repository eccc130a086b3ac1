package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/domain"
	"clubhub/internal/service"
)

// UserHandler atiende las rutas de autenticación.
type UserHandler struct {
	logger       *zap.Logger
	userServ     *service.UserService
	jwtServ      *service.JWTService
	secureCookie bool
}

func NewUserHandler(logger *zap.Logger, userServ *service.UserService, jwtServ *service.JWTService, secureCookie bool) *UserHandler {
	return &UserHandler{
		logger:       logger,
		userServ:     userServ,
		jwtServ:      jwtServ,
		secureCookie: secureCookie,
	}
}

// SignUp maneja POST /api/auth/signup.
func (h *UserHandler) SignUp(c *gin.Context) {
	var req service.SignUpInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.SignUp(c.Request.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": verr.Fields})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Account already present with these credentials"})
		default:
			h.logger.Error("signup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		}
		return
	}

	tokens, ok := h.issueTokens(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": tokens, "message": "User created successfully"})
}

// Login maneja POST /api/auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.userServ.Authenticate(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	tokens, ok := h.issueTokens(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens, "message": "User logged in successfully"})
}

// RefreshToken maneja POST /api/auth/refresh-token.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token missing. Please log in again."})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(c.Request.Context(), token)
	if err != nil {
		msg := "Invalid refresh token. Please login again"
		if errors.Is(err, service.ErrJWTExpired) {
			msg = "Refresh token expired. Please log in again."
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}
	h.setAuthCookies(c, tokens)
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "message": "Tokens refreshed successfully"})
}

// Logout maneja POST /api/auth/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	access, _ := c.Cookie(accessTokenCookie)
	refresh := h.refreshTokenFrom(c)
	if access == "" && refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are already logged out"})
		return
	}
	if refresh != "" {
		if err := h.jwtServ.RevokeRefresh(c.Request.Context(), refresh); err != nil {
			h.logger.Debug("revoke refresh on logout failed", zap.Error(err))
		}
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// LogoutAll maneja POST /api/auth/logout-all: cierra las sesiones del usuario en todos sus dispositivos.
func (h *UserHandler) LogoutAll(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	n, err := h.jwtServ.RevokeAllSessions(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("revoke sessions failed", zap.Error(err), zap.String("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not logout"})
		return
	}
	h.logger.Info("all sessions revoked", zap.String("user_id", user.ID), zap.Int("sessions", n))
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out from all devices", "sessions": n})
}

// Profile maneja GET /api/auth/profile.
func (h *UserHandler) Profile(c *gin.Context) {
	user, ok := GetAuthUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *UserHandler) refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength == 0 {
		return ""
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *UserHandler) issueTokens(c *gin.Context, user domain.User) (service.TokenPair, bool) {
	tokens, err := h.jwtServ.GeneratePair(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err), zap.String("user_id", user.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return service.TokenPair{}, false
	}
	h.setAuthCookies(c, tokens)
	return tokens, true
}

func (h *UserHandler) setAuthCookies(c *gin.Context, tokens service.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessTokenCookie, tokens.AccessToken, int(h.jwtServ.AccessTTL().Seconds()), "/", "", h.secureCookie, true)
	c.SetCookie(refreshTokenCookie, tokens.RefreshToken, int(h.jwtServ.RefreshTTL().Seconds()), "/", "", h.secureCookie, true)
}

func (h *UserHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", h.secureCookie, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", h.secureCookie, true)
}
