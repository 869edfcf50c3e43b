// Package middleware carries the gin middleware chain: request logging
// with metrics, panic recovery, CORS, request ids, error rendering, and
// JWT auth.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/idgen"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
	"github.com/reviewpilot/reviewpilot/pkg/telemetry"
)

// LoggerConfig holds the configuration for the Logger middleware
type LoggerConfig struct {
	// AccessLog enables info-level logs for successful requests.
	// Errors (status >= 400) are always logged.
	AccessLog bool
}

// Logger returns a middleware that logs HTTP requests and feeds the
// request metrics. If cfg is nil, access logging is off.
func Logger(cfg *LoggerConfig) gin.HandlerFunc {
	accessLog := cfg != nil && cfg.AccessLog

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// Use the route pattern, not the raw path, to keep metric
		// cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		telemetry.GetMetrics().RecordHTTPRequest(c.Request.Context(),
			c.Request.Method, route, status, latency.Seconds())

		fields := requestFields(c, path, query, status, latency)
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Client error", fields...)
		case accessLog:
			logger.Info("Request", fields...)
		}
	}
}

// requestFields assembles the log fields for one handled request
func requestFields(c *gin.Context, path, query string, status int, latency time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("query", query),
		zap.String("ip", c.ClientIP()),
		zap.String("user_agent", c.Request.UserAgent()),
		zap.Duration("latency", latency),
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("error", c.Errors.String()))
	}
	return fields
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				abortOnPanic(c, r)
			}
		}()
		c.Next()
	}
}

// abortOnPanic logs the panic with its stack and turns it into a 500
func abortOnPanic(c *gin.Context, r any) {
	logger.Error("Panic recovered",
		zap.Any("error", r),
		zap.ByteString("stack", debug.Stack()),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"code":    errors.ErrCodeInternal,
		"message": "Internal server error",
	})
}

// CORS returns a middleware that handles CORS headers. Only origins on
// the whitelist get CORS headers; preflight requests from other origins
// are rejected outright.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, allowed := originSet[origin]
		allowed = allowed && origin != ""

		if allowed {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Type")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			status := http.StatusForbidden
			if allowed {
				status = http.StatusNoContent
			}
			c.AbortWithStatus(status)
			return
		}

		c.Next()
	}
}

// RequestID returns a middleware that adds a request ID to the context.
// A client-supplied X-Request-ID is propagated unchanged.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.NewRequestID()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// ErrorHandler returns a middleware that converts errors attached to the
// gin context into JSON responses. In production mode (debugMode=false)
// internal error details are hidden from clients.
func ErrorHandler(debugMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := errors.AsAppError(err)
		if !ok {
			message := "Internal server error"
			if debugMode {
				message = err.Error()
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    errors.ErrCodeInternal,
				"message": message,
			})
			return
		}

		message := appErr.Message
		if appErr.HTTPStatus() >= http.StatusInternalServerError && !debugMode {
			message = "Internal server error"
		}
		response := gin.H{"code": appErr.Code, "message": message}
		if debugMode && appErr.Details != nil {
			response["details"] = appErr.Details
		}
		c.JSON(appErr.HTTPStatus(), response)
	}
}

// TokenValidator is an interface for validating JWT tokens
type TokenValidator interface {
	ValidateToken(token string) (username string, err error)
}

// abortUnauthorized rejects the request with a 401 JSON body
func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    errors.ErrCodeUnauthorized,
		"message": message,
	})
}

// JWTAuth returns a middleware that validates bearer tokens and stores
// the authenticated username in the gin context.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortUnauthorized(c, "Invalid authorization format")
			return
		}

		username, err := validator.ValidateToken(token)
		if err != nil {
			logger.Debug("JWT validation failed", zap.Error(err))
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set("username", username)
		c.Next()
	}
}
