package middleware

import (
	"net/http"
	"strconv"

	"support-chat/internal/redis"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	chat_errors "support-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware applies per-IP rate limiting to auth endpoints.
func RateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		path := c.Request.URL.Path
		if isAuthEndpoint(path) {
			result, err := limiter.AllowAuth(c.Request.Context(), clientIP)
			if err != nil {
				c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("rate limit error", "INTERNAL_ERROR"))
				c.Abort()
				return
			}

			setRateLimitHeaders(c, result)

			if !result.Allowed {
				c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(chat_errors.ErrRateLimited.Error(), "RATE_LIMITED"))
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// MessageRateLimitMiddleware limits message sends per actor. Applied to
// message endpoints after the identity middleware.
func MessageRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := services.IdentityFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		result, err := limiter.AllowMessage(c.Request.Context(), id.ActorID())
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("rate limit error", "INTERNAL_ERROR"))
			c.Abort()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(chat_errors.ErrRateLimited.Error(), "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}

// isAuthEndpoint checks if the request path is an auth endpoint
func isAuthEndpoint(path string) bool {
	authPaths := []string{
		"/v1/auth/signup",
		"/v1/auth/signin",
		"/v1/auth/signout",
	}
	for _, p := range authPaths {
		if path == p {
			return true
		}
	}
	return false
}
