package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/stellar"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("stellar_address", func(fl validator.FieldLevel) bool {
		return stellar.IsValidAddress(fl.Field().String())
	})
	return v
}

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller

	// Production 生产环境隐藏内部错误细节
	Production bool
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope for err.
func (c *BaseController) JSONError(err error) {
	appErr := toAppError(err, c.Production)

	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Ctx.Input.Method()),
			zap.String("path", c.Ctx.Input.URL()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}

	body := map[string]interface{}{
		"success": false,
		"error":   appErr,
	}
	// 402 同时在顶层给出 required/current/deficit
	if details, ok := appErr.Details.(map[string]interface{}); ok && appErr.Code == apperrors.ErrCodeInsufficientBalance {
		for k, v := range details {
			body[k] = v
		}
	}
	c.JSON(appErr.HTTPCode, body)
}

// Fail writes an error envelope with a fixed code.
func (c *BaseController) Fail(code apperrors.ErrorCode, message string) {
	c.JSONError(apperrors.New(code, message))
}

// bindJSON 解析并校验请求体
func (c *BaseController) bindJSON(dst interface{}) bool {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 {
		c.Fail(apperrors.ErrCodeMissingRequired, "request body is required")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		c.Fail(apperrors.ErrCodeMissingRequired, "request body must be valid JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		c.JSONError(validationError(err))
		return false
	}
	return true
}

// walletQuery 读取并校验 walletAddress 查询参数
func (c *BaseController) walletQuery() (string, bool) {
	wallet := strings.TrimSpace(c.GetString("walletAddress"))
	if wallet == "" {
		c.Fail(apperrors.ErrCodeMissingRequired, "walletAddress is required")
		return "", false
	}
	if !stellar.IsValidAddress(wallet) {
		c.Fail(apperrors.ErrCodeInvalidAddress, "invalid Stellar address")
		return "", false
	}
	return wallet, true
}

func (c *BaseController) mustParseUintParam(key string) (uint, bool) {
	id, err := strconv.ParseUint(c.Ctx.Input.Param(key), 10, 64)
	if err != nil || id == 0 {
		c.Fail(apperrors.ErrCodeMissingRequired, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// pagination 读取 limit/offset，limit 超出 [1,max] 或 offset 为负时返回 400
func (c *BaseController) pagination(defaultLimit, maxLimit int) (int, int, bool) {
	limit, err := strconv.Atoi(c.GetString("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > maxLimit {
		c.Fail(apperrors.ErrCodeInvalidPagination, "limit must be between 1 and "+strconv.Itoa(maxLimit))
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.GetString("offset", "0"))
	if err != nil || offset < 0 {
		c.Fail(apperrors.ErrCodeInvalidPagination, "offset must be zero or greater")
		return 0, 0, false
	}
	return limit, offset, true
}

// getClientIP 获取客户端真实IP地址
func (c *BaseController) getClientIP() string {
	if xff := c.Ctx.Input.Header("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xRealIP := c.Ctx.Input.Header("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}
	return c.Ctx.Input.IP()
}

// validationError 将校验失败映射为错误码
func validationError(err error) *apperrors.AppError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperrors.New(apperrors.ErrCodeMissingRequired, err.Error())
	}

	fe := errs[0]
	switch fe.Tag() {
	case "stellar_address":
		return apperrors.New(apperrors.ErrCodeInvalidAddress, "invalid Stellar address")
	case "required":
		return apperrors.New(apperrors.ErrCodeMissingRequired, jsonFieldName(fe)+" is required")
	default:
		return apperrors.New(apperrors.ErrCodeMissingRequired, jsonFieldName(fe)+" is invalid")
	}
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "field"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
