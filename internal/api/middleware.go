package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"timeclock/internal/admin"
	"timeclock/internal/db/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	claimsKey = "claims"
	actorKey  = "actor"
)

func AuthRequired(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := tokens.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := c.MustGet(claimsKey).(*Claims)
		if !ok || !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// LoadActor resolves the token's admin so that deleted or unverified
// accounts lose access before their token expires.
func LoadActor(svc *admin.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsKey).(*Claims)
		id := uuid.MustParse(claims.EmployeeID)

		actor, err := svc.Employee(c.Request.Context(), id)
		if errors.Is(err, admin.ErrEmployeeNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
			return
		}
		if !actor.IsAdmin || !actor.Verified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) *models.Employee {
	return c.MustGet(actorKey).(*models.Employee)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
