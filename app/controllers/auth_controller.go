package controllers

import (
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/auth"
	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// AuthController 钱包登录与会话
type AuthController struct {
	BaseController
	Users   *services.UserService
	Credits *services.CreditsService
	Pricing *services.PricingService
	Ledger  *stellar.Client
	JWT     *auth.JWTService
}

type walletLoginRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,stellar_address"`
}

// Wallet POST /api/auth/wallet
func (c *AuthController) Wallet() {
	var req walletLoginRequest
	if !c.bindJSON(&req) {
		return
	}
	ctx := c.Ctx.Request.Context()

	user, created, err := c.Users.FindOrCreate(ctx, req.WalletAddress)
	if err != nil {
		c.JSONError(err)
		return
	}

	account := c.Ledger.AccountExists(ctx, req.WalletAddress)

	balance, err := c.Credits.GetBalance(ctx, user.ID, c.Pricing.Asset())
	if err != nil {
		c.JSONError(err)
		return
	}

	token, expiresAt, err := c.JWT.GenerateToken(user.ID, user.WalletAddress, c.Ledger.Network())
	if err != nil {
		c.JSONError(err)
		return
	}

	logger.Info("钱包登录",
		zap.String("wallet", user.WalletAddress),
		zap.Bool("created", created),
		zap.String("ip", c.getClientIP()))

	message := "signed in"
	if created {
		message = "user created"
	}
	c.JSONSuccess(map[string]interface{}{
		"userId":        user.ID,
		"walletAddress": user.WalletAddress,
		"profile": map[string]interface{}{
			"name":      user.Name,
			"email":     user.Email,
			"bio":       user.Bio,
			"avatarUrl": user.AvatarURL,
		},
		"stellarAccount": account,
		"balance":        balance,
		"asset":          c.Pricing.Asset(),
		"token":          token,
		"expiresAt":      expiresAt,
		"created":        created,
		"message":        message,
	})
}

// Session GET /api/auth/session
func (c *AuthController) Session() {
	raw, err := auth.ExtractTokenFromHeader(c.Ctx.Input.Header("Authorization"))
	if err != nil {
		c.Fail(apperrors.ErrCodeUnauthorized, err.Error())
		return
	}

	claims, err := c.JWT.ValidateToken(raw)
	if err != nil {
		c.Fail(apperrors.ErrCodeUnauthorized, err.Error())
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"userId":        claims.UserID,
		"walletAddress": claims.WalletAddress,
		"network":       claims.Network,
		"expiresAt":     claims.ExpiresAt.Time,
	})
}
