package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/internal/service"
)

type MessageHandler struct {
	messageService service.IMessageService
}

func NewMessageHandler(messageService service.IMessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// Send handles POST /groups/:id/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), c.Param("id"), requesterID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// List handles GET /groups/:id/messages.
func (h *MessageHandler) List(c *gin.Context) {
	var req service.ListMessagesRequest
	req.Page, _ = strconv.Atoi(c.Query("page"))
	req.Limit, _ = strconv.Atoi(c.Query("limit"))
	req.Before, _ = strconv.ParseInt(c.Query("before"), 10, 64)
	req.After, _ = strconv.ParseInt(c.Query("after"), 10, 64)

	messages, err := h.messageService.List(c.Request.Context(), c.Param("id"), requesterID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListPinned handles GET /groups/:id/messages/pinned.
func (h *MessageHandler) ListPinned(c *gin.Context) {
	messages, err := h.messageService.ListPinned(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Search handles GET /groups/:id/messages/search.
func (h *MessageHandler) Search(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, total, err := h.messageService.Search(c.Request.Context(), c.Param("id"), requesterID(c), c.Query("q"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": total})
}

// Edit handles PATCH /messages/:message_id.
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), messageID, requesterID(c), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

// Delete handles DELETE /messages/:message_id.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	if err := h.messageService.SoftDelete(c.Request.Context(), messageID, requesterID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

// React handles PUT /messages/:message_id/reactions/:emoji.
func (h *MessageHandler) React(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	message, err := h.messageService.React(c.Request.Context(), messageID, requesterID(c), c.Param("emoji"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

// TogglePin handles PUT /messages/:message_id/pin.
func (h *MessageHandler) TogglePin(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	message, err := h.messageService.TogglePin(c.Request.Context(), messageID, requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

// MarkRead handles PUT /messages/:message_id/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	if err := h.messageService.MarkRead(c.Request.Context(), messageID, requesterID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked read"})
}

// ReadStatus handles GET /messages/:message_id/read-status.
func (h *MessageHandler) ReadStatus(c *gin.Context) {
	messageID, ok := parseMessageID(c)
	if !ok {
		return
	}

	status, err := h.messageService.ReadStatus(c.Request.Context(), messageID, requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func parseMessageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}
