package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive/config"
	"github.com/studyhive/studyhive/internal/repository"
	"github.com/studyhive/studyhive/middleware/jwt"
	"github.com/studyhive/studyhive/middleware/log"
	"github.com/studyhive/studyhive/utils/ratelimit"
)

type MiddlewareManager struct {
	tokenManager *jwt.TokenManager
	userRepo     repository.IUserRepository
	rateLimiter  ratelimit.Limiter
	logger       *logger.Logger
	rateLimitCfg *config.RateLimitConfig
}

func NewMiddlewareManager(
	tokenManager *jwt.TokenManager,
	userRepo repository.IUserRepository,
	rateLimiter ratelimit.Limiter,
	log *logger.Logger,
	rateLimitCfg *config.RateLimitConfig,
) *MiddlewareManager {
	return &MiddlewareManager{
		tokenManager: tokenManager,
		userRepo:     userRepo,
		rateLimiter:  rateLimiter,
		logger:       log,
		rateLimitCfg: rateLimitCfg,
	}
}

// RequestID assigns every request a correlation ID, honoring one supplied
// by an upstream proxy.
func (m *MiddlewareManager) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// JWTAuth resolves the bearer token to a user ID and rejects tokens of
// deactivated accounts. Routes behind it can rely on user_id being set.
func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := m.authenticate(c)
		if !ok {
			return
		}
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// OptionalAuth resolves the token when present but lets anonymous requests
// through; read endpoints scope their answers by the resulting user_id.
func (m *MiddlewareManager) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := m.authenticate(c)
		if !ok {
			return
		}
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}

// authenticate parses the Authorization header. It returns ok=false after
// writing the response for a malformed or rejected token; a missing header
// yields ("", true).
func (m *MiddlewareManager) authenticate(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", true
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
		c.Abort()
		return "", false
	}

	claims, err := m.tokenManager.ParseToken(parts[1])
	if err != nil {
		m.logger.Warn("token validation failed",
			zap.Error(err), zap.String("ip", c.ClientIP()))

		message := "invalid token"
		switch {
		case errors.Is(err, jwt.ErrExpiredToken):
			message = "token has expired"
		case errors.Is(err, jwt.ErrTokenNotYetValid):
			message = "token not yet valid"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": message})
		c.Abort()
		return "", false
	}

	user, err := m.userRepo.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		c.Abort()
		return "", false
	}
	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account deactivated"})
		c.Abort()
		return "", false
	}
	return user.ID, true
}

// RateLimit enforces limitPerMinute per user, falling back to the client IP
// for anonymous requests.
func (m *MiddlewareManager) RateLimit(limitPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.rateLimiter == nil || !m.rateLimitCfg.Enabled {
			c.Next()
			return
		}

		var key string
		if userID, exists := c.Get("user_id"); exists {
			key = fmt.Sprintf("user:%s", userID)
		} else {
			key = fmt.Sprintf("ip:%s", c.ClientIP())
		}

		allowed, err := m.rateLimiter.Allow(c.Request.Context(), key, limitPerMinute, time.Minute)
		if err != nil {
			m.logger.Error("rate limit check failed",
				zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			c.Abort()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		}
		if userID := c.GetString("user_id"); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}

		switch {
		case statusCode >= 500:
			m.logger.Error("server error", fields...)
		case statusCode >= 400:
			m.logger.Warn("client error", fields...)
		default:
			m.logger.Info("request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
