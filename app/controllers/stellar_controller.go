package controllers

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// StellarController 账本网络的薄封装
type StellarController struct {
	BaseController
	Ledger *stellar.Client
}

type demoPaymentRequest struct {
	SourceAddress string           `json:"sourceAddress" validate:"required,stellar_address"`
	Amount        *decimal.Decimal `json:"amount"`
}

type signTransactionRequest struct {
	TransactionXDR string `json:"transactionXDR" validate:"required"`
	SecretKey      string `json:"secretKey" validate:"required"`
}

type validateAddressRequest struct {
	Address string `json:"address" validate:"required"`
}

// Balances GET /api/stellar/balances/:accountId
func (c *StellarController) Balances() {
	accountID, ok := c.accountParam()
	if !ok {
		return
	}

	balances, err := c.Ledger.GetBalances(c.Ctx.Request.Context(), accountID)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"accountId": accountID,
		"balances":  balances,
		"network":   c.Ledger.Network(),
		"timestamp": time.Now().UTC(),
	})
}

// DemoPayment POST /api/stellar/demo-payment
func (c *StellarController) DemoPayment() {
	if !c.debugAllowed() {
		return
	}
	var req demoPaymentRequest
	if !c.bindJSON(&req) {
		return
	}

	amount := stellar.MinPaymentAmount
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			c.Fail(apperrors.ErrCodeInvalidAmount, "amount must be a positive number")
			return
		}
		amount = *req.Amount
	}

	xdr, err := c.Ledger.BuildPaymentTransaction(c.Ctx.Request.Context(), req.SourceAddress, amount)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"transaction": map[string]interface{}{
			"xdr":    xdr,
			"source": req.SourceAddress,
			"amount": amount,
		},
		"network": c.Ledger.Network(),
		"warning": "demonstration transaction, unsigned",
	})
}

// SignTransaction POST /api/stellar/sign-transaction
func (c *StellarController) SignTransaction() {
	if !c.debugAllowed() {
		return
	}
	var req signTransactionRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Ledger.SignAndSubmit(c.Ctx.Request.Context(), req.TransactionXDR, req.SecretKey)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"transaction": result,
		"network":     c.Ledger.Network(),
	})
}

// NetworkInfo GET /api/stellar/network-info
func (c *StellarController) NetworkInfo() {
	info, err := c.Ledger.NetworkInfo(c.Ctx.Request.Context())
	if err != nil {
		c.JSONError(err)
		return
	}
	c.JSONSuccess(info)
}

// AccountInfo GET /api/stellar/account/:accountId/info
func (c *StellarController) AccountInfo() {
	accountID, ok := c.accountParam()
	if !ok {
		return
	}
	ctx := c.Ctx.Request.Context()

	status := c.Ledger.AccountExists(ctx, accountID)
	data := map[string]interface{}{
		"accountId": accountID,
		"exists":    status.Exists,
		"balance":   status.Balance,
		"reason":    status.Reason,
		"network":   c.Ledger.Network(),
		"timestamp": time.Now().UTC(),
	}
	if status.Exists {
		info, err := c.Ledger.AccountInfo(ctx, accountID)
		if err != nil {
			c.JSONError(err)
			return
		}
		data["account"] = info
	}
	c.JSONSuccess(data)
}

// ValidateAddress POST /api/stellar/validate-address
func (c *StellarController) ValidateAddress() {
	var req validateAddressRequest
	if !c.bindJSON(&req) {
		return
	}

	valid := stellar.IsValidAddress(req.Address)
	format := "invalid"
	if valid {
		format = "Ed25519 public key"
	}
	c.JSONSuccess(map[string]interface{}{
		"address":   req.Address,
		"valid":     valid,
		"format":    format,
		"timestamp": time.Now().UTC(),
	})
}

// TestAddress GET /api/stellar/test-address
func (c *StellarController) TestAddress() {
	if !c.debugAllowed() {
		return
	}

	kp, err := c.Ledger.GenerateTestKeypair()
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"publicKey": kp.Address,
		"secretKey": kp.Secret,
		"instructions": []string{
			"use the public key to sign in",
			"activate the account with friendbot: https://friendbot.stellar.org",
		},
	})
}

func (c *StellarController) accountParam() (string, bool) {
	accountID := c.Ctx.Input.Param(":accountId")
	if !stellar.IsValidAddress(accountID) {
		c.Fail(apperrors.ErrCodeInvalidAddress, "invalid Stellar address")
		return "", false
	}
	return accountID, true
}

// debugAllowed 调试接口在生产环境或公网上禁用
func (c *StellarController) debugAllowed() bool {
	if c.Production || c.Ledger.IsPublic() {
		c.JSONError(stellar.ErrProductionDisabled)
		return false
	}
	return true
}
