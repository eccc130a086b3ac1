package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps agrupa los handlers y middlewares que arma main.
type RouterDeps struct {
	Users         *UserHandler
	Messages      *MessageHandler
	WebSocket     *WSHandler
	Auth          gin.HandlerFunc
	CORSOrigin    string
	WSRequireAuth bool
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(deps.CORSOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", jsonContentTypeMiddleware())

	auth := api.Group("/auth")
	auth.POST("/signup", deps.Users.SignUp)
	auth.POST("/login", deps.Users.Login)
	auth.POST("/logout", deps.Users.Logout)
	auth.POST("/logout-all", deps.Auth, deps.Users.LogoutAll)
	auth.POST("/refresh-token", deps.Users.RefreshToken)
	auth.GET("/profile", deps.Auth, deps.Users.Profile)

	messages := api.Group("/messages", deps.Auth)
	messages.GET("", deps.Messages.GetMessages)
	messages.GET("/with/:userId", deps.Messages.GetConversation)

	if deps.WSRequireAuth {
		r.GET("/ws", deps.Auth, deps.WebSocket.Serve)
	} else {
		r.GET("/ws", deps.WebSocket.Serve)
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

// corsMiddleware permite un único origen con credenciales (cookies).
func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" && c.GetHeader("Origin") == origin {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
