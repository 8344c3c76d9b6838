package controllers

import (
	"net/http"
	"time"

	"github.com/aihub/ai-gateway/internal/ai"
	"github.com/aihub/ai-gateway/internal/services"
)

const connectivityPrompt = `Reply with exactly: "Connectivity test OK"`

// AIController 付费补全与提供商状态
type AIController struct {
	BaseController
	Payments *services.PaymentService
	AI       *ai.Service
}

type completionRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required"`
	Prompt        string `json:"prompt" validate:"required"`
	SecretKey     string `json:"secretKey"`
}

// Completions POST /api/ai/completions
func (c *AIController) Completions() {
	var req completionRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Payments.Complete(c.Ctx.Request.Context(), services.CompletionRequest{
		WalletAddress: req.WalletAddress,
		Prompt:        req.Prompt,
		SecretKey:     req.SecretKey,
	})
	if err != nil {
		c.JSONError(err)
		return
	}

	// 补全接口返回扁平对象
	c.JSON(http.StatusOK, result)
}

// Status GET /api/ai/status
func (c *AIController) Status() {
	availability := c.AI.CheckAvailability(c.Ctx.Request.Context())
	c.JSONSuccess(struct {
		ai.Availability
		Chain     []string  `json:"chain"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Availability: availability,
		Chain:        c.AI.Providers(),
		Timestamp:    time.Now().UTC(),
	})
}

// Test POST /api/ai/test
func (c *AIController) Test() {
	result, err := c.AI.Generate(c.Ctx.Request.Context(), connectivityPrompt)
	if err != nil {
		c.JSONError(&services.AIUnavailableError{Err: err})
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"response":      result.Text,
		"provider":      result.Provider,
		"model":         result.Model,
		"executionTime": result.ExecutionTimeMs,
		"timestamp":     time.Now().UTC(),
	})
}
