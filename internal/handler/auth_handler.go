package handler

import (
	"context"
	"net/http"
	"strings"

	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AuthLimiter clears an IP's auth-attempt window after a successful sign-in.
type AuthLimiter interface {
	ResetAuth(ctx context.Context, ip string) error
}

type AuthHandler struct {
	service *services.AuthService
	limiter AuthLimiter
}

func NewAuthHandler(service *services.AuthService, limiter AuthLimiter) *AuthHandler {
	return &AuthHandler{service: service, limiter: limiter}
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req httpdto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	resp, err := h.service.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(resp))
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req httpdto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	resp, err := h.service.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid credentials", "UNAUTHORIZED"))
		return
	}
	if h.limiter != nil {
		// Best effort: earlier failed attempts stop counting against the IP.
		_ = h.limiter.ResetAuth(c.Request.Context(), c.ClientIP())
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if err := h.service.SignOut(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(nil))
}

// Me returns the profile behind the current identity, or the anonymous
// session id for unauthenticated visitors.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if !id.Authenticated() {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
			"anonymous":  true,
			"session_id": id.SessionID,
		}))
		return
	}

	profile, err := h.service.Profile(c.Request.Context(), id.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("profile not found", "NOT_FOUND"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(profile))
}

func bearerToken(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
