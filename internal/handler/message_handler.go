package handler

import (
	"errors"
	"net/http"

	"support-chat/internal/domain"
	"support-chat/internal/services"
	"support-chat/internal/status"
	"support-chat/internal/transport/httpdto"
	chat_errors "support-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	gateway  *services.MessageGateway
	pipeline *status.Pipeline
}

func NewMessageHandler(gateway *services.MessageGateway, pipeline *status.Pipeline) *MessageHandler {
	return &MessageHandler{gateway: gateway, pipeline: pipeline}
}

// List returns the caller's conversation, ascending by creation time. Admins
// may pass ?actor_id= to read any visitor conversation.
func (h *MessageHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := services.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	scope := id.Scope()
	if actorID := c.Query("actor_id"); actorID != "" {
		if !services.IsAdminFromContext(ctx) {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("admin access required", "FORBIDDEN"))
			return
		}
		scope = domain.ScopeForActor(actorID)
	}

	messages, err := h.gateway.FetchConversation(ctx, scope)
	if err != nil {
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("conversation unavailable", "FETCH_FAILED"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": messages}))
}

// Send inserts a message. Visitors send into their own conversation; admins
// address a reply with recipient_id.
func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	ctx := c.Request.Context()
	id, ok := services.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var (
		msg domain.Message
		err error
	)
	if req.RecipientID != "" {
		if !services.IsAdminFromContext(ctx) {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("admin access required", "FORBIDDEN"))
			return
		}
		msg, err = h.gateway.SendReply(ctx, id.UserID, req.RecipientID, req.Content)
	} else {
		msg, err = h.gateway.SendMessage(ctx, id, req.Content)
	}
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(msg))
}

// UpdateStatus queues a single forward status transition for a message. The
// update is acknowledged immediately and retried in the background. The
// caller must own the message's conversation or be an admin.
func (h *MessageHandler) UpdateStatus(c *gin.Context) {
	var req httpdto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	messageID := c.Param("id")
	st := domain.MessageStatus(req.Status)
	if messageID == "" || !st.Valid() || st == domain.StatusSent {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(chat_errors.ErrInvalidTransition.Error(), "INVALID_REQUEST"))
		return
	}

	ctx := c.Request.Context()
	id, ok := services.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	if !h.authorizeStatus(c, id, services.IsAdminFromContext(ctx), messageID) {
		return
	}

	switch st {
	case domain.StatusDelivered:
		h.pipeline.MarkDelivered(messageID)
	case domain.StatusRead:
		h.pipeline.MarkRead(messageID)
	}
	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(nil))
}

// MarkRead queues read transitions for a batch of messages, signalled by a
// client whose conversation view is open and focused. Every id must belong
// to the caller's conversation; one foreign id rejects the whole batch.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req httpdto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MessageIDs) == 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	ctx := c.Request.Context()
	id, ok := services.IdentityFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	isAdmin := services.IsAdminFromContext(ctx)
	for _, messageID := range req.MessageIDs {
		if !h.authorizeStatus(c, id, isAdmin, messageID) {
			return
		}
	}

	h.pipeline.MarkRead(req.MessageIDs...)
	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(nil))
}

// authorizeStatus writes the error response on failure and reports whether
// the transition may be queued.
func (h *MessageHandler) authorizeStatus(c *gin.Context, id domain.Identity, isAdmin bool, messageID string) bool {
	err := h.gateway.AuthorizeStatusUpdate(c.Request.Context(), id, isAdmin, messageID)
	switch {
	case err == nil:
		return true
	case chat_errors.IsPermission(err):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("not allowed", "FORBIDDEN"))
	case errors.Is(err, chat_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("message not found", "NOT_FOUND"))
	default:
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("status update unavailable", "STATUS_FAILED"))
	}
	return false
}

func (h *MessageHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat_errors.ErrEmptyContent), errors.Is(err, chat_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("message content required", "INVALID_REQUEST"))
	case chat_errors.IsPermission(err):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("not allowed", "FORBIDDEN"))
	default:
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("send failed", "SEND_FAILED"))
	}
}
