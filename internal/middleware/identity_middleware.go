package middleware

import (
	"context"
	"net/http"
	"strings"

	"support-chat/internal/identity"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionHeader = "X-Session-Id"
	contextCookie = "chat_context"
)

// IdentityMiddleware resolves the active identity for every request. A valid
// bearer token yields the authenticated user; otherwise the request runs as
// an anonymous visitor whose session id is read from the X-Session-Id header
// or minted and persisted for the browser context. The resolved identity and
// admin flag are stashed on the request context.
func IdentityMiddleware(auth *services.AuthService, redis *goredis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token := extractBearer(c)
		var session *identity.Session
		isAdmin := false
		if token != "" {
			claims, err := auth.ParseAccessToken(ctx, token)
			if err == nil {
				session = &identity.Session{UserID: claims.UserID}
				isAdmin = claims.IsAdmin
			}
		}

		// Persisted anonymous state is keyed by the browser-context cookie.
		// Without the cookie there is no per-browser key, so nothing is
		// persisted: the minted id lives only in the X-Session-Id echo and
		// comes back on the next request via the header. Keying on anything
		// shared, like the client IP, would hand one visitor's session to
		// every other client behind the same address.
		var inner identity.SessionStore = volatileSessionStore{}
		if ctxID := browserContextID(c); ctxID != "" {
			inner = identity.NewRedisSessionStore(redis, ctxID)
		}
		store := requestSessionStore{
			ctx:   c,
			inner: inner,
		}
		resolver := identity.NewResolver(staticAuthProvider{session: session}, store)

		id, err := resolver.Resolve(ctx)
		if err != nil {
			if log := logger.GetGlobalLogger(); log != nil {
				log.ErrorfCtx(ctx, "identity resolution failed: %s", err.Error())
			}
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("identity resolution failed", "INTERNAL_ERROR"))
			c.Abort()
			return
		}
		if !id.Authenticated() {
			c.Writer.Header().Set(sessionHeader, id.SessionID)
		}

		ctx = services.WithIdentity(ctx, id, isAdmin)
		ctx = context.WithValue(ctx, logger.ActorIdKey, id.ActorID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin gates admin-console routes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !services.IsAdminFromContext(c.Request.Context()) {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("admin access required", "FORBIDDEN"))
			c.Abort()
			return
		}
		c.Next()
	}
}

type staticAuthProvider struct {
	session *identity.Session
}

func (p staticAuthProvider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	return p.session, nil
}

// requestSessionStore reads session keys from the request and persists them
// for the browser context. The header takes precedence so a client that
// already holds its anonymous id keeps it even when the Redis copy expired.
type requestSessionStore struct {
	ctx   *gin.Context
	inner identity.SessionStore
}

func (s requestSessionStore) Get(ctx context.Context, key string) (string, error) {
	if key == identity.SessionKey {
		if v := s.ctx.GetHeader(sessionHeader); v != "" {
			return v, nil
		}
	}
	return s.inner.Get(ctx, key)
}

func (s requestSessionStore) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, key, value)
}

// volatileSessionStore holds nothing. Used when the request carries no
// browser-context cookie: every Get misses, so the resolver mints a fresh
// session id per request instead of reading another client's.
type volatileSessionStore struct{}

func (volatileSessionStore) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (volatileSessionStore) Set(ctx context.Context, key, value string) error    { return nil }

// browserContextID identifies the browser context across visits, or returns
// empty when the edge has not set the cookie.
func browserContextID(c *gin.Context) string {
	if cookie, err := c.Cookie(contextCookie); err == nil && cookie != "" {
		return cookie
	}
	return ""
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
