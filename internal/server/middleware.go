package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/goalforge/internal/config"
	obscontext "github.com/smallbiznis/goalforge/internal/observability/context"
	"github.com/smallbiznis/goalforge/internal/observability/logger"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", logger.RequestIDHeader},
		ExposeHeaders: []string{logger.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	return cors.New(corsCfg)
}

// AuthRequired resolves the bearer token to a user id and stores it on the
// gin and request contexts.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.auth.Validate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// APIRateLimit applies the per-user API budget. It runs after AuthRequired.
func (s *Server) APIRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		userID := c.GetString(contextUserIDKey)
		if err := s.limiter.AllowAPI(c.Request.Context(), userID); err != nil {
			logger.FromContext(c.Request.Context()).Debug("api rate limit exceeded",
				zap.String("route", c.FullPath()),
			)
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// liveToken also accepts the token query parameter, since browsers cannot set
// headers on a websocket handshake.
func liveToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	return bearerToken(c)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}
