package controllers

import (
	"github.com/aihub/ai-gateway/internal/services"
)

// ConversationController 对话控制器
type ConversationController struct {
	BaseController
	Conversations *services.ConversationService
}

type createConversationRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,stellar_address"`
	Title         string `json:"title" validate:"max=255"`
}

type sendMessageRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
	Message       string `json:"message" validate:"required"`
	SecretKey     string `json:"secretKey"`
}

// List GET /api/conversations
func (c *ConversationController) List() {
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}
	limit, offset, ok := c.pagination(20, 100)
	if !ok {
		return
	}

	conversations, total, err := c.Conversations.List(c.Ctx.Request.Context(), wallet, limit, offset)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"conversations": conversations,
		"pagination":    newPagination(limit, offset, len(conversations), total),
	})
}

// Create POST /api/conversations
func (c *ConversationController) Create() {
	var req createConversationRequest
	if !c.bindJSON(&req) {
		return
	}

	conversation, err := c.Conversations.Create(c.Ctx.Request.Context(), req.WalletAddress, req.Title)
	if err != nil {
		c.JSONError(err)
		return
	}
	c.JSONSuccess(conversation)
}

// Messages GET /api/conversations/:id/messages
func (c *ConversationController) Messages() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}

	conversation, messages, err := c.Conversations.Messages(c.Ctx.Request.Context(), id, wallet)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"conversation": conversation,
		"messages":     newMessageViews(messages),
	})
}

// SendMessage POST /api/conversations/:id/messages
func (c *ConversationController) SendMessage() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !c.bindJSON(&req) {
		return
	}

	reply, err := c.Conversations.SendMessage(c.Ctx.Request.Context(), id, services.CompletionRequest{
		WalletAddress: req.WalletAddress,
		Prompt:        req.Message,
		SecretKey:     req.SecretKey,
	})
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"userMessage":      newMessageView(reply.UserMessage),
		"assistantMessage": newMessageView(reply.AssistantMessage),
		"completion":       reply.Completion,
	})
}

// Delete DELETE /api/conversations/:id
func (c *ConversationController) Delete() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}

	if err := c.Conversations.Delete(c.Ctx.Request.Context(), id, wallet); err != nil {
		c.JSONError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"id": id, "deleted": true})
}
