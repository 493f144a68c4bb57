package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"support-chat/internal/domain"
	"support-chat/internal/services"

	"github.com/gin-gonic/gin"
)

func identityTestRouter(t *testing.T) (*gin.Engine, *domain.Identity) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var resolved domain.Identity
	r := gin.New()
	// No bearer token and no cookie in these tests, so neither the auth
	// service nor Redis is touched.
	r.Use(IdentityMiddleware(nil, nil))
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := services.IdentityFromContext(c.Request.Context())
		resolved = id
		c.Status(http.StatusOK)
	})
	return r, &resolved
}

func TestIdentityMiddleware_CookielessClientsGetDistinctSessions(t *testing.T) {
	r, _ := identityTestRouter(t)

	// Two clients behind the same address, neither holding a session id yet.
	// Each must be minted its own anonymous session; sharing one would leak
	// the first visitor's conversation to the second.
	ids := make(map[string]bool)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		sid := w.Header().Get("X-Session-Id")
		if sid == "" {
			t.Fatal("anonymous request must be echoed its session id")
		}
		if ids[sid] {
			t.Fatalf("session id %s handed to two different clients", sid)
		}
		ids[sid] = true
	}
}

func TestIdentityMiddleware_HeaderSessionIsKept(t *testing.T) {
	r, resolved := identityTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Session-Id", "sess-held-by-client")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Session-Id"); got != "sess-held-by-client" {
		t.Errorf("expected the client's session id echoed back, got %q", got)
	}
	if resolved.SessionID != "sess-held-by-client" {
		t.Errorf("expected the header session resolved, got %q", resolved.SessionID)
	}
	if resolved.Authenticated() {
		t.Error("header session must resolve as anonymous")
	}
}

func TestBrowserContextID_EmptyWithoutCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.7:4000"

	if got := browserContextID(c); got != "" {
		t.Errorf("no cookie must mean no shared context key, got %q", got)
	}

	c.Request.AddCookie(&http.Cookie{Name: "chat_context", Value: "ctx-1"})
	if got := browserContextID(c); got != "ctx-1" {
		t.Errorf("expected cookie value, got %q", got)
	}
}
