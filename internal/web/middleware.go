package web

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/errs"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	HeaderTenant = "X-Tenant-ID"
	HeaderUser   = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

const (
	ctxTenant = "tenant_id"
	ctxUser   = "user_id"
)

// identity rejects requests without a tenant and user.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(HeaderTenant))
		user := strings.TrimSpace(c.GetHeader(HeaderUser))
		if tenant == "" || user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing " + HeaderTenant + " or " + HeaderUser})
			return
		}
		c.Set(ctxTenant, tenant)
		c.Set(ctxUser, user)
		c.Next()
	}
}

// requireAdmin guards tenant-wide settings.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "admin role required"})
			return
		}
		c.Next()
	}
}

func isAdmin(c *gin.Context) bool {
	return strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderRole)), "admin")
}

func tenantOf(c *gin.Context) string { return c.GetString(ctxTenant) }
func userOf(c *gin.Context) string   { return c.GetString(ctxUser) }

// requestLogger logs one line per request, without payloads.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("http", fields...)
		case status >= 400:
			log.Warn("http", fields...)
		default:
			log.Info("http", fields...)
		}
	}
}

// recoverer turns a panicking handler into a 500.
func recoverer(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal"})
			}
		}()
		c.Next()
	}
}

func corsPolicy() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Content-Type", HeaderTenant, HeaderUser, HeaderRole}
	return cors.New(cfg)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as JSON. Internal errors are logged and hidden.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal"
	}
	c.AbortWithStatusJSON(status, errorBody{Error: msg})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg})
}
