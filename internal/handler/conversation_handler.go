package handler

import (
	"net/http"
	"strconv"

	"support-chat/internal/conversations"
	"support-chat/internal/domain"
	"support-chat/internal/services"
	"support-chat/internal/status"
	"support-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the admin console's conversation list off the
// shared aggregator, which is kept current by the realtime feed.
type ConversationHandler struct {
	aggregator *conversations.Aggregator
	gateway    *services.MessageGateway
	pipeline   *status.Pipeline
}

func NewConversationHandler(aggregator *conversations.Aggregator, gateway *services.MessageGateway, pipeline *status.Pipeline) *ConversationHandler {
	return &ConversationHandler{aggregator: aggregator, gateway: gateway, pipeline: pipeline}
}

// List returns one page of conversations, most recent activity first.
func (h *ConversationHandler) List(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid page", "INVALID_REQUEST"))
			return
		}
		page = parsed
	}

	if err := h.aggregator.LoadPage(c.Request.Context(), page); err != nil {
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("conversations unavailable", "FETCH_FAILED"))
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"conversations": h.aggregator.Conversations(),
		"page":          h.aggregator.Page(),
		"total_pages":   h.aggregator.TotalPages(),
	}))
}

// MarkRead marks every unread visitor message in one conversation as read and
// zeroes the list's unread projection. The persisted transitions go through
// the status pipeline one at a time.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	actorID := c.Param("actorId")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid actor id", "INVALID_REQUEST"))
		return
	}

	messages, err := h.gateway.FetchConversation(c.Request.Context(), domain.ScopeForActor(actorID))
	if err != nil {
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("conversation unavailable", "FETCH_FAILED"))
		return
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.FromVisitor() && m.Status != domain.StatusRead {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) > 0 {
		h.pipeline.MarkRead(ids...)
	}
	h.aggregator.MarkConversationRead(actorID)

	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(gin.H{"queued": len(ids)}))
}
